package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	clientdomain "github.com/smallbiznis/carebill/internal/client/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       invoicedomain.Repository
	ClientRepo clientdomain.Repository
	Rating     ratingdomain.Service
	Rules      *config.BillingRulesHolder
	Enqueuer   deliverydomain.Enqueuer
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	repo       invoicedomain.Repository
	clientRepo clientdomain.Repository
	rating     ratingdomain.Service
	rules      *config.BillingRulesHolder
	enqueuer   deliverydomain.Enqueuer
	auditSvc   auditdomain.Service
	clock      clock.Clock
	metrics    *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:      p.GenID,
		repo:       p.Repo,
		clientRepo: p.ClientRepo,
		rating:     p.Rating,
		rules:      p.Rules,
		enqueuer:   p.Enqueuer,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		metrics:    p.Metrics,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Lines = lines
	return *invoice, nil
}

// Approve moves a draft invoice to approved and queues it for the client's billing address.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var approved *invoicedomain.Invoice
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvalidStatus
		}

		ok, err := s.repo.TransitionStatus(ctx, tx, id, invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusApproved, now)
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrInvalidStatus
		}

		var recipients []string
		client, err := s.clientRepo.FindClient(ctx, tx, invoice.ClientID)
		if err != nil {
			return err
		}
		if client != nil && strings.TrimSpace(client.BillingEmail) != "" {
			recipients = append(recipients, client.BillingEmail)
		}

		if _, _, err := s.enqueuer.Enqueue(ctx, tx, deliverydomain.EnqueueRequest{
			EntityType: deliverydomain.EntityInvoice,
			EntityID:   id,
			Recipients: recipients,
			At:         now,
		}); err != nil {
			return err
		}

		invoice.Status = invoicedomain.InvoiceStatusApproved
		approved = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordEnqueued(ctx, string(deliverydomain.EntityInvoice))
	s.emitAudit(ctx, "invoice.approved", approved, map[string]any{
		"previous_status": string(invoicedomain.InvoiceStatusDraft),
	})
	return s.GetByID(ctx, id)
}

// UpdateBalance records payments and adjustments. An invoice whose outstanding
// balance reaches zero becomes paid and locks its timesheets.
func (s *Service) UpdateBalance(ctx context.Context, id snowflake.ID, req invoicedomain.UpdateBalanceRequest) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	if req.PaidAmount == nil && req.Adjustments == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrEmptyUpdate
	}
	if req.PaidAmount != nil && req.PaidAmount.IsNegative() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	var (
		updated        *invoicedomain.Invoice
		previousStatus invoicedomain.InvoiceStatus
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		switch invoice.Status {
		case invoicedomain.InvoiceStatusApproved, invoicedomain.InvoiceStatusEmailed:
		default:
			return invoicedomain.ErrInvalidStatus
		}
		previousStatus = invoice.Status

		if req.PaidAmount != nil {
			invoice.PaidAmount = req.PaidAmount.Round(2)
		}
		if req.Adjustments != nil {
			invoice.Adjustments = req.Adjustments.Round(2)
		}
		invoice.OutstandingBalance = outstanding(invoice)
		if !invoice.OutstandingBalance.IsPositive() {
			invoice.Status = invoicedomain.InvoiceStatusPaid
		}
		invoice.UpdatedAt = now

		if err := s.repo.UpdateAmounts(ctx, tx, invoice); err != nil {
			return err
		}
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			if err := s.repo.LockTimesheets(ctx, tx, invoice.ID, now); err != nil {
				return err
			}
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.balance_updated", updated, map[string]any{
		"paid_amount":         updated.PaidAmount.StringFixed(2),
		"adjustments":         updated.Adjustments.StringFixed(2),
		"outstanding_balance": updated.OutstandingBalance.StringFixed(2),
	})
	if updated.Status == invoicedomain.InvoiceStatusPaid {
		s.emitAudit(ctx, "invoice.paid", updated, map[string]any{
			"previous_status": string(previousStatus),
		})
	}
	return s.GetByID(ctx, id)
}

// Recalculate re-prices every line with the current payer rates and billing rules.
func (s *Service) Recalculate(ctx context.Context, id snowflake.ID) (invoicedomain.RecalculateResult, error) {
	if id == 0 {
		return invoicedomain.RecalculateResult{}, invoicedomain.ErrInvalidInvoiceID
	}

	var (
		result   invoicedomain.RecalculateResult
		snapshot *invoicedomain.Invoice
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			return invoicedomain.ErrInvalidStatus
		}

		lines, err := s.repo.ListLines(ctx, tx, id)
		if err != nil {
			return err
		}
		timesheetIDs := make([]snowflake.ID, 0, len(lines))
		for _, line := range lines {
			timesheetIDs = append(timesheetIDs, line.TimesheetID)
		}
		programs, err := s.repo.TimesheetPrograms(ctx, tx, timesheetIDs)
		if err != nil {
			return err
		}
		pricer, err := s.newPricer(ctx, tx, invoice.ClientID)
		if err != nil {
			return err
		}

		var totals ratingdomain.Totals
		for _, line := range lines {
			priced, err := pricer.price(line.Minutes, line.ServiceTag, programs[line.TimesheetID])
			if err != nil {
				return err
			}
			totals.Add(priced)

			if line.Units.Equal(priced.Units) && line.Rate.Equal(priced.Rate) &&
				line.Amount.Equal(priced.Amount) && line.Suppressed == priced.Suppressed {
				continue
			}
			line.Units = priced.Units
			line.Rate = priced.Rate
			line.Amount = priced.Amount
			line.Suppressed = priced.Suppressed
			line.PayerID = pricer.payerID
			if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
				return err
			}
			result.ChangedLines++
		}

		result.PreviousAmount = invoice.TotalAmount
		invoice.TotalAmount = totals.Amount.Round(2)
		invoice.TotalUnits = totals.Units.Round(4)
		invoice.OutstandingBalance = outstanding(invoice)
		invoice.UpdatedAt = now
		if err := s.repo.UpdateAmounts(ctx, tx, invoice); err != nil {
			return err
		}
		snapshot = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.RecalculateResult{}, err
	}

	s.emitAudit(ctx, "invoice.recalculated", snapshot, map[string]any{
		"previous_amount": result.PreviousAmount.StringFixed(2),
		"changed_lines":   result.ChangedLines,
	})

	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return invoicedomain.RecalculateResult{}, err
	}
	result.Invoice = invoice
	return result, nil
}

// Void soft-deletes an unpaid invoice and releases its entries for a later run.
func (s *Service) Void(ctx context.Context, id snowflake.ID, req invoicedomain.VoidRequest) error {
	if id == 0 {
		return invoicedomain.ErrInvalidInvoiceID
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return invoicedomain.ErrVoidReasonRequired
	}

	var voided *invoicedomain.Invoice
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status == invoicedomain.InvoiceStatusPaid {
			return invoicedomain.ErrInvalidStatus
		}

		if err := s.repo.UnbillEntries(ctx, tx, id, now); err != nil {
			return err
		}
		if err := s.repo.DeleteLines(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.UnlinkTimesheets(ctx, tx, id, now); err != nil {
			return err
		}
		ok, err := s.repo.Void(ctx, tx, id, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrInvoiceNotFound
		}
		voided = invoice
		return nil
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, "invoice.voided", voided, map[string]any{
		"previous_status": string(voided.Status),
		"reason":          reason,
	})
	return nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"client_id":      invoice.ClientID.String(),
		"week_start":     invoice.WeekStart.Format(dateLayout),
		"total_amount":   invoice.TotalAmount.StringFixed(2),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	_ = s.auditSvc.Record(ctx, action, "invoice", invoice.ID.String(), "", metadata)
}

func outstanding(invoice *invoicedomain.Invoice) decimal.Decimal {
	return invoice.TotalAmount.Sub(invoice.PaidAmount).Add(invoice.Adjustments).Round(2)
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
