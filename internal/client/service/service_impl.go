package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/client/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) CreatePayer(ctx context.Context, req domain.CreatePayerRequest) (domain.Payer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Payer{}, domain.ErrInvalidName
	}

	legacy, err := optionalRate(req.RatePerUnit)
	if err != nil {
		return domain.Payer{}, err
	}
	standard, err := optionalRate(req.StandardRatePerUnit)
	if err != nil {
		return domain.Payer{}, err
	}
	supervisory, err := optionalRate(req.SupervisoryRatePerUnit)
	if err != nil {
		return domain.Payer{}, err
	}

	now := time.Now().UTC()
	payer := domain.Payer{
		ID:                        s.genID.Generate(),
		Name:                      name,
		RatePerUnit:               legacy,
		MinutesPerUnit:            req.MinutesPerUnit,
		StandardRatePerUnit:       standard,
		StandardMinutesPerUnit:    req.StandardMinutesPerUnit,
		SupervisoryRatePerUnit:    supervisory,
		SupervisoryMinutesPerUnit: req.SupervisoryMinutesPerUnit,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := s.repo.InsertPayer(ctx, s.db, &payer); err != nil {
		return domain.Payer{}, err
	}
	return payer, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.BillingEmail)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Client{}, domain.ErrInvalidEmail
	}

	var payerID *snowflake.ID
	if raw := strings.TrimSpace(req.PayerID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return domain.Client{}, domain.ErrInvalidID
		}
		payer, err := s.repo.FindPayer(ctx, s.db, id)
		if err != nil {
			return domain.Client{}, err
		}
		if payer == nil {
			return domain.Client{}, domain.ErrPayerNotFound
		}
		payerID = &id
	}

	now := time.Now().UTC()
	client := domain.Client{
		ID:           s.genID.Generate(),
		Name:         name,
		BillingEmail: email,
		PayerID:      payerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertClient(ctx, s.db, &client); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, id snowflake.ID) (domain.Client, error) {
	if id == 0 {
		return domain.Client{}, domain.ErrInvalidID
	}
	client, err := s.repo.FindClient(ctx, s.db, id)
	if err != nil {
		return domain.Client{}, err
	}
	if client == nil {
		return domain.Client{}, domain.ErrNotFound
	}
	return *client, nil
}

func optionalRate(value *decimal.Decimal) (decimal.NullDecimal, error) {
	if value == nil {
		return decimal.NullDecimal{}, nil
	}
	if value.IsNegative() {
		return decimal.NullDecimal{}, domain.ErrInvalidRate
	}
	return decimal.NewNullDecimal(*value), nil
}
