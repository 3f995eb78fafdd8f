package document

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	clientrepo "github.com/smallbiznis/carebill/internal/client/repository"
	"github.com/smallbiznis/carebill/internal/config"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	invoicerepo "github.com/smallbiznis/carebill/internal/invoice/repository"
	"github.com/smallbiznis/carebill/internal/providers/pdf"
	"github.com/smallbiznis/carebill/internal/providers/xlsx"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	timesheetrepo "github.com/smallbiznis/carebill/internal/timesheet/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var weekStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

type fixture struct {
	renderer deliverydomain.Renderer
	db       *gorm.DB
	node     *snowflake.Node
	client   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	node := dbtest.Node(t)

	f := &fixture{db: db, node: node, client: node.Generate()}
	payer := node.Generate()
	require.NoError(t, db.Exec(`INSERT INTO payers (id, name) VALUES (?, ?)`, payer, "State Medicaid").Error)
	require.NoError(t, db.Exec(
		`INSERT INTO clients (id, name, billing_email, payer_id) VALUES (?, ?, ?, ?)`,
		f.client, "Jamie Rivera", "billing@example.com", payer,
	).Error)

	f.renderer = New(Params{
		DB:            db,
		Config:        config.Config{Dispatch: config.DispatchConfig{PracticeName: "Northside Therapy"}},
		InvoiceRepo:   invoicerepo.Provide(),
		TimesheetRepo: timesheetrepo.Provide(),
		ClientRepo:    clientrepo.Provide(),
		PDF:           pdf.New(),
		XLSX:          xlsx.New(),
	})
	return f
}

func (f *fixture) invoice(t *testing.T, lines int) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, invoice_number, client_id, week_start, week_end, total_amount, total_units,
			outstanding_balance, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "INV-2026-0001", f.client, weekStart, weekStart.AddDate(0, 0, 6), "120.00", "6", "120.00", "approved",
	).Error)
	for i := 0; i < lines; i++ {
		require.NoError(t, f.db.Exec(
			`INSERT INTO invoice_entries (id, invoice_id, time_entry_id, timesheet_id, provider_id, service_date,
				service_tag, minutes, units, rate, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.node.Generate(), id, f.node.Generate(), f.node.Generate(), f.node.Generate(),
			weekStart.AddDate(0, 0, i), "direct", 45, "3", "20.00", "60.00",
		).Error)
	}
	return id
}

func (f *fixture) timesheet(t *testing.T, entries int) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO timesheets (id, provider_id, client_id, start_date, end_date, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), f.client, weekStart, weekStart.AddDate(0, 0, 6), "approved",
	).Error)
	for i := 0; i < entries; i++ {
		require.NoError(t, f.db.Exec(
			`INSERT INTO time_entries (id, timesheet_id, entry_date, start_time, end_time, duration_minutes, service_tag)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.node.Generate(), id, weekStart.AddDate(0, 0, i), "09:00", "10:00", 60, "direct",
		).Error)
	}
	return id
}

func item(entityType deliverydomain.EntityType, id snowflake.ID) deliverydomain.QueueItem {
	return deliverydomain.QueueItem{ID: 1, EntityType: entityType, EntityID: id, Status: deliverydomain.StatusSending}
}

func TestRenderInvoice(t *testing.T) {
	f := newFixture(t)
	id := f.invoice(t, 2)

	doc, err := f.renderer.Render(context.Background(), item(deliverydomain.EntityInvoice, id))
	require.NoError(t, err)

	assert.Equal(t, deliverydomain.EntityInvoice, doc.EntityType)
	assert.Equal(t, id, doc.EntityID)
	assert.Equal(t, "Invoice INV-2026-0001", doc.Title)
	assert.Equal(t, "invoice-INV-2026-0001.pdf", doc.FileName)
	assert.Equal(t, ContentTypePDF, doc.ContentType)
	assert.Equal(t, "Jamie Rivera, week of 2026-01-05, $120.00", doc.Summary)
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("%PDF")))
}

func TestRenderTimesheet(t *testing.T) {
	f := newFixture(t)
	id := f.timesheet(t, 3)

	doc, err := f.renderer.Render(context.Background(), item(deliverydomain.EntityTimesheet, id))
	require.NoError(t, err)

	assert.Equal(t, "Timesheet 2026-01-05 to 2026-01-11", doc.Title)
	assert.Equal(t, "Jamie Rivera, standard program, 180 minutes", doc.Summary)
	assert.Equal(t, "timesheet-Jamie Rivera-2026-01-05.xlsx", doc.FileName)
	assert.Equal(t, ContentTypeXLSX, doc.ContentType)
	// XLSX workbooks are zip archives.
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("PK")))
}

func TestRenderMissingSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deleted := f.timesheet(t, 1)
	require.NoError(t, f.db.Exec(`UPDATE timesheets SET deleted_at = ? WHERE id = ?`, time.Now(), deleted).Error)

	tests := []struct {
		name string
		item deliverydomain.QueueItem
		want error
	}{
		{"unknown invoice", item(deliverydomain.EntityInvoice, f.node.Generate()), ErrSourceNotFound},
		{"unknown timesheet", item(deliverydomain.EntityTimesheet, f.node.Generate()), ErrSourceNotFound},
		{"deleted timesheet", item(deliverydomain.EntityTimesheet, deleted), ErrSourceNotFound},
		{"invoice without lines", item(deliverydomain.EntityInvoice, f.invoice(t, 0)), pdf.ErrNoInvoiceLines},
		{"timesheet without entries", item(deliverydomain.EntityTimesheet, f.timesheet(t, 0)), xlsx.ErrNoEntries},
		{"unsupported type", item("payroll", f.node.Generate()), ErrUnsupportedEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.renderer.Render(ctx, tt.item)
			require.Error(t, err)
			assert.ErrorIs(t, err, deliverydomain.ErrRender)
			assert.ErrorIs(t, err, tt.want)

			var renderErr *deliverydomain.RenderError
			require.ErrorAs(t, err, &renderErr)
			assert.Equal(t, tt.item.EntityID, renderErr.EntityID)
		})
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$12.50", money(mustDecimal(t, "12.5")))
	assert.Equal(t, "-$3.00", money(mustDecimal(t, "-3")))
}

func mustDecimal(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}
