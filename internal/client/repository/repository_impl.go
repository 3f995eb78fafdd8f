package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/client/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const payerColumns = `id, name, rate_per_unit, minutes_per_unit, standard_rate_per_unit, standard_minutes_per_unit,
	supervisory_rate_per_unit, supervisory_minutes_per_unit, created_at, updated_at`

func (r *repo) InsertPayer(ctx context.Context, db *gorm.DB, payer *domain.Payer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payers (`+payerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payer.ID,
		payer.Name,
		payer.RatePerUnit,
		payer.MinutesPerUnit,
		payer.StandardRatePerUnit,
		payer.StandardMinutesPerUnit,
		payer.SupervisoryRatePerUnit,
		payer.SupervisoryMinutesPerUnit,
		payer.CreatedAt,
		payer.UpdatedAt,
	).Error
}

func (r *repo) InsertClient(ctx context.Context, db *gorm.DB, client *domain.Client) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO clients (id, name, billing_email, payer_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		client.ID,
		client.Name,
		client.BillingEmail,
		client.PayerID,
		client.CreatedAt,
		client.UpdatedAt,
	).Error
}

func (r *repo) FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Client, error) {
	var client domain.Client
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, billing_email, payer_id, created_at, updated_at, deleted_at
		 FROM clients WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&client).Error
	if err != nil {
		return nil, err
	}
	if client.ID == 0 {
		return nil, nil
	}
	return &client, nil
}

func (r *repo) FindPayer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payer, error) {
	var payer domain.Payer
	err := db.WithContext(ctx).Raw(
		`SELECT `+payerColumns+` FROM payers WHERE id = ?`,
		id,
	).Scan(&payer).Error
	if err != nil {
		return nil, err
	}
	if payer.ID == 0 {
		return nil, nil
	}
	return &payer, nil
}

func (r *repo) FindPayerForClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*domain.Payer, error) {
	var payer domain.Payer
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.rate_per_unit, p.minutes_per_unit, p.standard_rate_per_unit,
			p.standard_minutes_per_unit, p.supervisory_rate_per_unit, p.supervisory_minutes_per_unit,
			p.created_at, p.updated_at
		 FROM clients c
		 JOIN payers p ON p.id = c.payer_id
		 WHERE c.id = ?`,
		clientID,
	).Scan(&payer).Error
	if err != nil {
		return nil, err
	}
	if payer.ID == 0 {
		return nil, nil
	}
	return &payer, nil
}
