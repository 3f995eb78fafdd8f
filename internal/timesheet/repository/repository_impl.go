package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/timesheet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const timesheetColumns = `id, provider_id, client_id, start_date, end_date, status, is_supervisory,
	invoice_id, created_by, created_at, updated_at, deleted_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ts *domain.Timesheet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO timesheets (
			id, provider_id, client_id, start_date, end_date, status, is_supervisory,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID,
		ts.ProviderID,
		ts.ClientID,
		ts.StartDate,
		ts.EndDate,
		ts.Status,
		ts.IsSupervisory,
		ts.CreatedBy,
		ts.CreatedAt,
		ts.UpdatedAt,
	).Error
}

func (r *repo) InsertEntries(ctx context.Context, db *gorm.DB, entries []domain.TimeEntry) error {
	for _, entry := range entries {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO time_entries (
				id, timesheet_id, entry_date, start_time, end_time, duration_minutes,
				service_tag, billed, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.TimesheetID,
			entry.EntryDate,
			entry.StartTime,
			entry.EndTime,
			entry.DurationMinutes,
			entry.ServiceTag,
			entry.Billed,
			entry.CreatedAt,
			entry.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Timesheet, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Timesheet, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Timesheet, error) {
	query := `SELECT ` + timesheetColumns + ` FROM timesheets WHERE id = ? AND deleted_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}

	var ts domain.Timesheet
	if err := db.WithContext(ctx).Raw(query, id).Scan(&ts).Error; err != nil {
		return nil, err
	}
	if ts.ID == 0 {
		return nil, nil
	}
	return &ts, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) ([]domain.TimeEntry, error) {
	var entries []domain.TimeEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, timesheet_id, entry_date, start_time, end_time, duration_minutes,
			service_tag, billed, created_at, updated_at
		 FROM time_entries
		 WHERE timesheet_id = ?
		 ORDER BY entry_date, start_time, id`,
		timesheetID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, ts *domain.Timesheet) error {
	return db.WithContext(ctx).Exec(
		`UPDATE timesheets
		 SET start_date = ?, end_date = ?, is_supervisory = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		ts.StartDate,
		ts.EndDate,
		ts.IsSupervisory,
		ts.UpdatedAt,
		ts.ID,
	).Error
}

func (r *repo) DeleteUnbilledEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM time_entries WHERE timesheet_id = ? AND billed = ?`,
		timesheetID,
		false,
	).Error
}

func (r *repo) CountBilledEntries(ctx context.Context, db *gorm.DB, timesheetID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM time_entries WHERE timesheet_id = ? AND billed = ?`,
		timesheetID,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE timesheets SET status = ?, updated_at = ?
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

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE timesheets SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		at,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListStandardIntervals(ctx context.Context, db *gorm.DB, q domain.OverlapQuery) ([]domain.ExistingInterval, error) {
	if len(q.Dates) == 0 {
		return nil, nil
	}

	stmt := `SELECT te.id AS entry_id, te.timesheet_id, ts.provider_id, ts.client_id,
			te.entry_date, te.start_time, te.end_time
		 FROM time_entries te
		 JOIN timesheets ts ON ts.id = te.timesheet_id
		 WHERE ts.deleted_at IS NULL
		   AND ts.is_supervisory = ?
		   AND (ts.provider_id = ? OR ts.client_id = ?)
		   AND te.entry_date IN ?`
	args := []any{false, q.ProviderID, q.ClientID, q.Dates}
	if q.ExcludeTimesheetID != nil {
		stmt += ` AND ts.id <> ?`
		args = append(args, *q.ExcludeTimesheetID)
	}
	stmt += ` ORDER BY te.entry_date, te.start_time, te.id`

	var rows []domain.ExistingInterval
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ClientExists(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM clients WHERE id = ? AND deleted_at IS NULL`,
		clientID,
	).Scan(&count).Error
	return count > 0, err
}
