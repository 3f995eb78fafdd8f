package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const invoiceColumns = `id, invoice_number, client_id, week_start, week_end, total_amount, total_units,
	paid_amount, adjustments, outstanding_balance, status, void_reason, created_by,
	created_at, updated_at, deleted_at`

const lineColumns = `id, invoice_id, time_entry_id, timesheet_id, provider_id, payer_id, service_date,
	service_tag, minutes, units, rate, amount, suppressed, created_at`

func (r *repo) ListEligibleEntries(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID, standardOnly bool) ([]domain.EligibleEntry, error) {
	if len(timesheetIDs) == 0 {
		return nil, nil
	}

	stmt := `SELECT te.id AS entry_id, te.timesheet_id, ts.provider_id, ts.client_id, ts.is_supervisory,
			ts.start_date AS timesheet_start, te.entry_date, te.duration_minutes, te.service_tag
		 FROM time_entries te
		 JOIN timesheets ts ON ts.id = te.timesheet_id
		 WHERE ts.id IN ?
		   AND ts.deleted_at IS NULL
		   AND ts.status IN ('approved', 'emailed')
		   AND te.billed = ?`
	args := []any{timesheetIDs, false}
	if standardOnly {
		stmt += ` AND ts.is_supervisory = ?`
		args = append(args, false)
	}
	stmt += ` ORDER BY ts.client_id, te.entry_date, te.start_time, te.id`

	var rows []domain.EligibleEntry
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListInvoicedTimesheets(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID) ([]domain.InvoicedTimesheet, error) {
	if len(timesheetIDs) == 0 {
		return nil, nil
	}
	var rows []domain.InvoicedTimesheet
	err := db.WithContext(ctx).Raw(
		`SELECT ts.id AS timesheet_id, ts.client_id, ts.start_date AS timesheet_start, i.invoice_number
		 FROM timesheets ts
		 JOIN invoices i ON i.id = ts.invoice_id
		 WHERE ts.id IN ? AND ts.deleted_at IS NULL AND i.deleted_at IS NULL
		 ORDER BY ts.client_id, ts.start_date`,
		timesheetIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) FindOverlapping(ctx context.Context, db *gorm.DB, clientID snowflake.ID, start, end time.Time) (*domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE client_id = ? AND deleted_at IS NULL
		   AND week_start <= ? AND week_end >= ?
		 ORDER BY week_start
		 LIMIT 1`,
		clientID,
		end,
		start,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

// NextSequence increments the per-year counter; the row lock serializes concurrent generators.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, year int) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (year, last_value) VALUES (?, 1)
		 ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		 RETURNING last_value`,
		year,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, client_id, week_start, week_end, total_amount, total_units,
			paid_amount, adjustments, outstanding_balance, status, void_reason, created_by,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.ClientID,
		invoice.WeekStart,
		invoice.WeekEnd,
		invoice.TotalAmount,
		invoice.TotalUnits,
		invoice.PaidAmount,
		invoice.Adjustments,
		invoice.OutstandingBalance,
		invoice.Status,
		invoice.VoidReason,
		invoice.CreatedBy,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.InvoiceEntry) error {
	for _, line := range lines {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_entries (
				id, invoice_id, time_entry_id, timesheet_id, provider_id, payer_id, service_date,
				service_tag, minutes, units, rate, amount, suppressed, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.InvoiceID,
			line.TimeEntryID,
			line.TimesheetID,
			line.ProviderID,
			line.PayerID,
			line.ServiceDate,
			line.ServiceTag,
			line.Minutes,
			line.Units,
			line.Rate,
			line.Amount,
			line.Suppressed,
			line.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) MarkEntriesBilled(ctx context.Context, db *gorm.DB, entryIDs []snowflake.ID, at time.Time) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE time_entries SET billed = ?, updated_at = ?
		 WHERE id IN ? AND billed = ?`,
		true,
		at,
		entryIDs,
		false,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) LinkTimesheets(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID, invoiceID snowflake.ID, at time.Time) error {
	if len(timesheetIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE timesheets SET invoice_id = ?, updated_at = ?
		 WHERE id IN ? AND invoice_id IS NULL`,
		invoiceID,
		at,
		timesheetIDs,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ? AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}
	var invoices []domain.Invoice
	if err := db.WithContext(ctx).Raw(query, id).Scan(&invoices).Error; err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceEntry, error) {
	var lines []domain.InvoiceEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+` FROM invoice_entries
		 WHERE invoice_id = ?
		 ORDER BY service_date, id`,
		invoiceID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) TimesheetPrograms(ctx context.Context, db *gorm.DB, timesheetIDs []snowflake.ID) (map[snowflake.ID]bool, error) {
	out := make(map[snowflake.ID]bool, len(timesheetIDs))
	if len(timesheetIDs) == 0 {
		return out, nil
	}
	var rows []domain.TimesheetProgram
	if err := db.WithContext(ctx).Raw(
		`SELECT id, is_supervisory FROM timesheets WHERE id IN ?`,
		timesheetIDs,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.IsSupervisory
	}
	return out, nil
}

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, line domain.InvoiceEntry) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_entries SET units = ?, rate = ?, amount = ?, suppressed = ?, payer_id = ?
		 WHERE id = ?`,
		line.Units,
		line.Rate,
		line.Amount,
		line.Suppressed,
		line.PayerID,
		line.ID,
	).Error
}

func (r *repo) UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET total_amount = ?, total_units = ?, paid_amount = ?, adjustments = ?,
			outstanding_balance = ?, status = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		invoice.TotalAmount,
		invoice.TotalUnits,
		invoice.PaidAmount,
		invoice.Adjustments,
		invoice.OutstandingBalance,
		invoice.Status,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.InvoiceStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deleted_at IS NULL`,
		to,
		at,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) LockTimesheets(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE timesheets SET status = 'locked', updated_at = ?
		 WHERE invoice_id = ? AND deleted_at IS NULL`,
		at,
		invoiceID,
	).Error
}

func (r *repo) UnbillEntries(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE time_entries SET billed = ?, updated_at = ?
		 WHERE id IN (SELECT time_entry_id FROM invoice_entries WHERE invoice_id = ?)`,
		false,
		at,
		invoiceID,
	).Error
}

func (r *repo) DeleteLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM invoice_entries WHERE invoice_id = ?`,
		invoiceID,
	).Error
}

func (r *repo) UnlinkTimesheets(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE timesheets SET invoice_id = NULL, updated_at = ?
		 WHERE invoice_id = ?`,
		at,
		invoiceID,
	).Error
}

func (r *repo) Void(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET void_reason = ?, deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		reason,
		at,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
