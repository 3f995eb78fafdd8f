package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/carebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/carebill/internal/audit/service"
	clientrepo "github.com/smallbiznis/carebill/internal/client/repository"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/invoice/repository"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
	ratingservice "github.com/smallbiznis/carebill/internal/rating/service"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingEnqueuer struct {
	requests []deliverydomain.EnqueueRequest
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, db *gorm.DB, req deliverydomain.EnqueueRequest) (*deliverydomain.QueueItem, bool, error) {
	e.requests = append(e.requests, req)
	return &deliverydomain.QueueItem{
		ID:         snowflake.ID(len(e.requests)),
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Status:     deliverydomain.StatusQueued,
	}, true, nil
}

type fixture struct {
	svc      invoicedomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer *recordingEnqueuer
	payer    snowflake.ID
	provider snowflake.ID
}

var (
	weekOne = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	weekTwo = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))

	f := &fixture{
		db:       db,
		node:     node,
		enqueuer: &recordingEnqueuer{},
		payer:    node.Generate(),
		provider: node.Generate(),
	}
	require.NoError(t, db.Exec(
		`INSERT INTO payers (id, name, standard_rate_per_unit, standard_minutes_per_unit,
			supervisory_rate_per_unit, supervisory_minutes_per_unit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.payer, "State Medicaid", "20.00", 15, "30.00", 15,
	).Error)

	rules := config.NewStaticBillingRules(config.DefaultBillingRules())
	f.svc = NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		ClientRepo: clientrepo.Provide(),
		Rating:     ratingservice.NewService(ratingservice.ServiceParam{Rules: rules}),
		Rules:      rules,
		Enqueuer:   f.enqueuer,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Repo:  auditrepo.Provide(),
			Clock: clk,
		}),
		Clock: clk,
	})
	return f
}

func (f *fixture) client(t *testing.T, withPayer bool) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	var payer any
	if withPayer {
		payer = f.payer
	}
	require.NoError(t, f.db.Exec(
		`INSERT INTO clients (id, name, billing_email, payer_id) VALUES (?, ?, ?, ?)`,
		id, "client-"+id.String(), "billing-"+id.String()+"@example.com", payer,
	).Error)
	return id
}

type seedEntry struct {
	day     int
	minutes int
	tag     string
}

func (f *fixture) timesheet(t *testing.T, client snowflake.ID, start time.Time, supervisory bool, entries ...seedEntry) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO timesheets (id, provider_id, client_id, start_date, end_date, status, is_supervisory)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, f.provider, client, start, start.AddDate(0, 0, 6), "approved", supervisory,
	).Error)
	for _, e := range entries {
		f.entry(t, id, start, e)
	}
	return id
}

func (f *fixture) entry(t *testing.T, timesheetID snowflake.ID, start time.Time, e seedEntry) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO time_entries (id, timesheet_id, entry_date, start_time, end_time, duration_minutes, service_tag, billed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, timesheetID, start.AddDate(0, 0, e.day), "09:00", "10:00", e.minutes, e.tag, false,
	).Error)
	return id
}

func (f *fixture) generate(t *testing.T, ids ...snowflake.ID) invoicedomain.GenerateResult {
	t.Helper()
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.String())
	}
	result, err := f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{TimesheetIDs: raw})
	require.NoError(t, err)
	return result
}

func (f *fixture) count(t *testing.T, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(query, args...).Scan(&n).Error)
	return n
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func TestGeneratePoolsClientWeek(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	monday := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 90})
	wednesday := f.timesheet(t, client, weekOne.AddDate(0, 0, 2), false, seedEntry{day: 0, minutes: 60})

	result := f.generate(t, monday, wednesday)
	require.Len(t, result.Created, 1)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Errors)

	created := result.Created[0]
	assert.Equal(t, "INV-2026-0001", created.InvoiceNumber)
	assert.Equal(t, "2026-01-05", created.WeekStart)
	assert.Equal(t, 2, created.EntryCount)
	assertMoney(t, "200.00", created.TotalAmount)
	assert.Equal(t, "10", created.TotalUnits.String())

	invoice, err := f.svc.GetByID(context.Background(), created.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "2026-01-11", formatDate(invoice.WeekEnd))
	assertMoney(t, "200.00", invoice.OutstandingBalance)
	require.Len(t, invoice.Lines, 2)
	assert.Equal(t, "6", invoice.Lines[0].Units.String())

	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM timesheets WHERE invoice_id = ?`, created.InvoiceID))
}

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60}, seedEntry{day: 1, minutes: 60})

	first := f.generate(t, ts)
	require.Len(t, first.Created, 1)

	second := f.generate(t, ts)
	assert.Empty(t, second.Created)
	assert.Empty(t, second.Errors)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, client, second.Skipped[0].ClientID)
	assert.Equal(t, "2026-01-05", second.Skipped[0].WeekStart)
	assert.Equal(t, first.Created[0].InvoiceNumber, second.Skipped[0].InvoiceNumber)

	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM invoices WHERE client_id = ?`, client))
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM invoice_entries`))
}

func TestGenerateNeverBillsTwice(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60})

	first := f.generate(t, ts)
	require.Len(t, first.Created, 1)

	late := f.entry(t, ts, weekOne, seedEntry{day: 3, minutes: 45})
	second := f.generate(t, ts)
	assert.Empty(t, second.Created)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, "invoice already exists", second.Skipped[0].Reason)

	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM invoice_entries WHERE time_entry_id = ?`, late))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM time_entries WHERE id = ? AND billed = ?`, late, false))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM invoice_entries`))
}

func TestGenerateSuppressesSupervisoryTagsOnStandardTimesheets(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	standard := f.timesheet(t, client, weekOne, false,
		seedEntry{day: 0, minutes: 60, tag: "supervisory"},
		seedEntry{day: 1, minutes: 30},
	)
	supervisory := f.timesheet(t, client, weekOne.AddDate(0, 0, 1), true, seedEntry{day: 0, minutes: 60, tag: "supervisory"})

	result := f.generate(t, standard, supervisory)
	require.Len(t, result.Created, 1)
	created := result.Created[0]
	assertMoney(t, "160.00", created.TotalAmount)
	assert.Equal(t, "10", created.TotalUnits.String())

	invoice, err := f.svc.GetByID(context.Background(), created.InvoiceID)
	require.NoError(t, err)
	require.Len(t, invoice.Lines, 3)

	var suppressed, charged int
	for _, line := range invoice.Lines {
		if line.Suppressed {
			suppressed++
			assert.Equal(t, "4", line.Units.String())
			assertMoney(t, "0.00", line.Amount)
			continue
		}
		charged++
	}
	assert.Equal(t, 1, suppressed)
	assert.Equal(t, 2, charged)
}

func TestGenerateStandardOnly(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	standard := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60})
	supervisory := f.timesheet(t, client, weekOne, true, seedEntry{day: 1, minutes: 60})

	result, err := f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{
		TimesheetIDs: []string{standard.String(), supervisory.String()},
		StandardOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Created[0].EntryCount)
	assertMoney(t, "80.00", result.Created[0].TotalAmount)
}

func TestGenerateMissingRateFailsOnlyThatGroup(t *testing.T) {
	f := newFixture(t)
	rated := f.client(t, true)
	unrated := f.client(t, false)
	good := f.timesheet(t, rated, weekOne, false, seedEntry{day: 0, minutes: 60})
	bad := f.timesheet(t, unrated, weekOne, false, seedEntry{day: 0, minutes: 60})

	result := f.generate(t, good, bad)
	require.Len(t, result.Created, 1)
	assert.Equal(t, rated, result.Created[0].ClientID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, unrated, result.Errors[0].ClientID)
	assert.Equal(t, "missing_rate", result.Errors[0].Code)

	assert.Equal(t, int64(1), f.count(t,
		`SELECT COUNT(*) FROM time_entries WHERE timesheet_id = ? AND billed = ?`, bad, false))
	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM invoices WHERE client_id = ?`, unrated))
}

func TestGenerateSeparatesWeeksAndClients(t *testing.T) {
	f := newFixture(t)
	a := f.client(t, true)
	b := f.client(t, true)
	ids := []snowflake.ID{
		f.timesheet(t, a, weekOne, false, seedEntry{day: 0, minutes: 60}),
		f.timesheet(t, a, weekTwo, false, seedEntry{day: 0, minutes: 60}),
		f.timesheet(t, b, weekOne, false, seedEntry{day: 0, minutes: 60}),
	}

	result := f.generate(t, ids...)
	require.Len(t, result.Created, 3)

	seen := make(map[string]struct{})
	for _, created := range result.Created {
		seen[created.InvoiceNumber] = struct{}{}
	}
	assert.Equal(t, map[string]struct{}{
		"INV-2026-0001": {},
		"INV-2026-0002": {},
		"INV-2026-0003": {},
	}, seen)
}

func TestGenerateRetriesTakenInvoiceNumber(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	other := f.client(t, true)
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, invoice_number, client_id, week_start, week_end, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), "INV-2026-0001", other,
		time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 7, 0, 0, 0, 0, time.UTC), "draft",
	).Error)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60})

	result := f.generate(t, ts)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "INV-2026-0002", result.Created[0].InvoiceNumber)
}

func TestConcurrentGenerateAllocatesDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	const workers = 8

	timesheets := make([]snowflake.ID, workers)
	for i := range timesheets {
		timesheets[i] = f.timesheet(t, f.client(t, true), weekOne, false, seedEntry{day: 0, minutes: 60})
	}

	results := make([]invoicedomain.GenerateResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range timesheets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{
				TimesheetIDs: []string{timesheets[i].String()},
			})
		}(i)
	}
	wg.Wait()

	numbers := make([]string, 0, workers)
	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Created, 1)
		assert.Empty(t, results[i].Errors)
		numbers = append(numbers, results[i].Created[0].InvoiceNumber)
	}
	sort.Strings(numbers)

	want := make([]string, 0, workers)
	for i := 1; i <= workers; i++ {
		want = append(want, fmt.Sprintf("INV-2026-%04d", i))
	}
	assert.Equal(t, want, numbers)
}

func TestConcurrentGenerateSameWeekCreatesOnce(t *testing.T) {
	f := newFixture(t)
	const workers = 4
	ts := f.timesheet(t, f.client(t, true), weekOne, false, seedEntry{day: 0, minutes: 60}, seedEntry{day: 2, minutes: 30})

	results := make([]invoicedomain.GenerateResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{
				TimesheetIDs: []string{ts.String()},
			})
		}(i)
	}
	wg.Wait()

	created, skipped := 0, 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Empty(t, results[i].Errors)
		created += len(results[i].Created)
		skipped += len(results[i].Skipped)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, skipped)
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM invoices WHERE deleted_at IS NULL`))
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM invoice_entries`))
}

func TestGenerateRejectsBadSelection(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrEmptySelection)

	_, err = f.svc.Generate(context.Background(), invoicedomain.GenerateRequest{TimesheetIDs: []string{"nope"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTimesheetID)
}

func TestGenerateIgnoresDraftTimesheets(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60})
	require.NoError(t, f.db.Exec(`UPDATE timesheets SET status = 'draft' WHERE id = ?`, ts).Error)

	result := f.generate(t, ts)
	assert.Empty(t, result.Created)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestApproveQueuesInvoiceForBillingEmail(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60})
	created := f.generate(t, ts).Created[0]

	invoice, err := f.svc.Approve(context.Background(), created.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, invoice.Status)

	require.Len(t, f.enqueuer.requests, 1)
	req := f.enqueuer.requests[0]
	assert.Equal(t, deliverydomain.EntityInvoice, req.EntityType)
	assert.Equal(t, created.InvoiceID, req.EntityID)
	assert.Equal(t, []string{"billing-" + client.String() + "@example.com"}, req.Recipients)

	_, err = f.svc.Approve(context.Background(), created.InvoiceID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = f.svc.Approve(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestUpdateBalanceMarksPaidAndLocksTimesheets(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 90}, seedEntry{day: 1, minutes: 60})
	created := f.generate(t, ts).Created[0]
	ctx := context.Background()

	paid := decimal.RequireFromString("100")
	_, err := f.svc.UpdateBalance(ctx, created.InvoiceID, invoicedomain.UpdateBalanceRequest{PaidAmount: &paid})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = f.svc.Approve(ctx, created.InvoiceID)
	require.NoError(t, err)

	_, err = f.svc.UpdateBalance(ctx, created.InvoiceID, invoicedomain.UpdateBalanceRequest{})
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyUpdate)

	negative := decimal.RequireFromString("-1")
	_, err = f.svc.UpdateBalance(ctx, created.InvoiceID, invoicedomain.UpdateBalanceRequest{PaidAmount: &negative})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	partial := decimal.RequireFromString("150")
	invoice, err := f.svc.UpdateBalance(ctx, created.InvoiceID, invoicedomain.UpdateBalanceRequest{PaidAmount: &partial})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, invoice.Status)
	assertMoney(t, "50.00", invoice.OutstandingBalance)

	writeOff := decimal.RequireFromString("-50")
	invoice, err = f.svc.UpdateBalance(ctx, created.InvoiceID, invoicedomain.UpdateBalanceRequest{Adjustments: &writeOff})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, invoice.Status)
	assertMoney(t, "0.00", invoice.OutstandingBalance)
	assertMoney(t, "150.00", invoice.PaidAmount)

	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM timesheets WHERE id = ? AND status = 'locked'`, ts))

	err = f.svc.Void(ctx, created.InvoiceID, invoicedomain.VoidRequest{Reason: "duplicate"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
	_, err = f.svc.Recalculate(ctx, created.InvoiceID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestRecalculateAppliesCurrentRates(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 90}, seedEntry{day: 1, minutes: 60})
	created := f.generate(t, ts).Created[0]
	assertMoney(t, "200.00", created.TotalAmount)

	require.NoError(t, f.db.Exec(`UPDATE payers SET standard_rate_per_unit = ? WHERE id = ?`, "25.00", f.payer).Error)

	result, err := f.svc.Recalculate(context.Background(), created.InvoiceID)
	require.NoError(t, err)
	assertMoney(t, "200.00", result.PreviousAmount)
	assert.Equal(t, 2, result.ChangedLines)
	assertMoney(t, "250.00", result.Invoice.TotalAmount)
	assertMoney(t, "250.00", result.Invoice.OutstandingBalance)

	again, err := f.svc.Recalculate(context.Background(), created.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.ChangedLines)
}

func TestVoidReleasesEntriesForRegeneration(t *testing.T) {
	f := newFixture(t)
	client := f.client(t, true)
	ts := f.timesheet(t, client, weekOne, false, seedEntry{day: 0, minutes: 60}, seedEntry{day: 2, minutes: 30})
	created := f.generate(t, ts).Created[0]
	ctx := context.Background()

	err := f.svc.Void(ctx, created.InvoiceID, invoicedomain.VoidRequest{Reason: "  "})
	assert.ErrorIs(t, err, invoicedomain.ErrVoidReasonRequired)

	require.NoError(t, f.svc.Void(ctx, created.InvoiceID, invoicedomain.VoidRequest{Reason: "wrong client"}))

	_, err = f.svc.GetByID(ctx, created.InvoiceID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM time_entries WHERE timesheet_id = ? AND billed = ?`, ts, false))
	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM invoice_entries WHERE invoice_id = ?`, created.InvoiceID))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM timesheets WHERE id = ? AND invoice_id IS NULL`, ts))

	again := f.generate(t, ts)
	require.Len(t, again.Created, 1)
	assert.Equal(t, "INV-2026-0002", again.Created[0].InvoiceNumber)
	assertMoney(t, created.TotalAmount.StringFixed(2), again.Created[0].TotalAmount)
}

func TestGroupEntriesByClientAndWeek(t *testing.T) {
	sunday := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	entries := []invoicedomain.EligibleEntry{
		{EntryID: 1, ClientID: 2, TimesheetStart: weekTwo},
		{EntryID: 2, ClientID: 1, TimesheetStart: sunday},
		{EntryID: 3, ClientID: 1, TimesheetStart: weekOne},
		{EntryID: 4, ClientID: 2, TimesheetStart: weekOne.AddDate(0, 0, 3)},
	}

	groups := groupEntries(entries)
	require.Len(t, groups, 3)
	assert.Equal(t, invoicedomain.GroupKey{ClientID: 1, WeekStart: weekOne}, groups[0].key)
	assert.Len(t, groups[0].entries, 2)
	assert.Equal(t, invoicedomain.GroupKey{ClientID: 2, WeekStart: weekOne}, groups[1].key)
	assert.Equal(t, invoicedomain.GroupKey{ClientID: 2, WeekStart: weekTwo}, groups[2].key)
	assert.Equal(t, "2026-01-18", formatDate(groups[2].key.WeekEnd()))
}

func TestGroupErrorCodes(t *testing.T) {
	assert.Equal(t, "missing_rate", groupErrorCode(&ratingdomain.MissingRateError{Program: ratingdomain.ProgramStandard}))
	assert.Equal(t, "concurrency_conflict", groupErrorCode(&invoicedomain.ConcurrencyConflict{Op: "mark_billed"}))
	assert.Equal(t, "internal_error", groupErrorCode(assert.AnError))
}
