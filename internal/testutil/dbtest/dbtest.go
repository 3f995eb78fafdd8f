// Package dbtest opens isolated in-memory sqlite databases carrying the carebill schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a fresh database with every table created. Each call gets its own
// in-memory database and a single connection, so statements inside a transaction
// must go through the tx handle.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stripRowLocks(db)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	return db
}

// Node returns a snowflake node for tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// sqlite has no row locks; drop FOR UPDATE clauses before execution.
func stripRowLocks(db *gorm.DB) {
	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if !strings.Contains(sql, "FOR UPDATE") {
			return
		}
		sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(sql)
	}
	_ = db.Callback().Query().Before("gorm:query").Register("sqlite_strip_row_locks", strip)
	_ = db.Callback().Row().Before("gorm:row").Register("sqlite_strip_row_locks_row", strip)
}

var schema = []string{
	`CREATE TABLE payers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		rate_per_unit NUMERIC,
		minutes_per_unit INTEGER,
		standard_rate_per_unit NUMERIC,
		standard_minutes_per_unit INTEGER,
		supervisory_rate_per_unit NUMERIC,
		supervisory_minutes_per_unit INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE clients (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		billing_email TEXT NOT NULL DEFAULT '',
		payer_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	)`,
	`CREATE TABLE practice_members (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE timesheets (
		id INTEGER PRIMARY KEY,
		provider_id INTEGER NOT NULL,
		client_id INTEGER NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		is_supervisory BOOLEAN NOT NULL DEFAULT FALSE,
		invoice_id INTEGER,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	)`,
	`CREATE TABLE time_entries (
		id INTEGER PRIMARY KEY,
		timesheet_id INTEGER NOT NULL,
		entry_date DATE NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		service_tag TEXT NOT NULL DEFAULT '',
		billed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE invoice_sequences (
		year INTEGER PRIMARY KEY,
		last_value INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE invoices (
		id INTEGER PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		client_id INTEGER NOT NULL,
		week_start DATE NOT NULL,
		week_end DATE NOT NULL,
		total_amount NUMERIC NOT NULL DEFAULT 0,
		total_units NUMERIC NOT NULL DEFAULT 0,
		paid_amount NUMERIC NOT NULL DEFAULT 0,
		adjustments NUMERIC NOT NULL DEFAULT 0,
		outstanding_balance NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		void_reason TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_invoices_number ON invoices (invoice_number)`,
	`CREATE UNIQUE INDEX ux_invoices_client_week ON invoices (client_id, week_start) WHERE deleted_at IS NULL`,
	`CREATE TABLE invoice_entries (
		id INTEGER PRIMARY KEY,
		invoice_id INTEGER NOT NULL,
		time_entry_id INTEGER NOT NULL,
		timesheet_id INTEGER NOT NULL,
		provider_id INTEGER NOT NULL,
		payer_id INTEGER,
		service_date DATE NOT NULL,
		service_tag TEXT NOT NULL DEFAULT '',
		minutes INTEGER NOT NULL,
		units NUMERIC NOT NULL,
		rate NUMERIC NOT NULL,
		amount NUMERIC NOT NULL,
		suppressed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_invoice_entries_time_entry ON invoice_entries (time_entry_id)`,
	`CREATE TABLE queue_items (
		id INTEGER PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'QUEUED',
		recipients JSONB NOT NULL DEFAULT '[]',
		queued_at DATETIME NOT NULL,
		claim_token TEXT,
		claimed_at DATETIME,
		sent_at DATETIME,
		batch_id TEXT,
		error_message TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_queue_items_pending_entity ON queue_items (entity_type, entity_id)
		WHERE deleted_at IS NULL AND status IN ('QUEUED', 'SENDING')`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		actor_type TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
