package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/carebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/carebill/internal/audit/service"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/delivery/domain"
	"github.com/smallbiznis/carebill/internal/delivery/repository"
	"github.com/smallbiznis/carebill/internal/providers/email"
	"github.com/smallbiznis/carebill/internal/providers/slack"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	fail map[snowflake.ID]error
}

func (r *fakeRenderer) Render(ctx context.Context, item domain.QueueItem) (domain.Document, error) {
	if err := r.fail[item.EntityID]; err != nil {
		return domain.Document{}, err
	}
	name := string(item.EntityType) + "-" + item.EntityID.String()
	return domain.Document{
		EntityType:  item.EntityType,
		EntityID:    item.EntityID,
		Title:       "Document " + name,
		FileName:    name + ".pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.4 " + name),
	}, nil
}

type failingSender struct {
	err error
}

func (s failingSender) Send(ctx context.Context, msg email.Message) error {
	return s.err
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, msg email.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingSlack struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingSlack) PostMessage(ctx context.Context, channelID string, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchiver) Put(ctx context.Context, key string, contentType string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

func (a *recordingArchiver) Enabled() bool { return true }

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	repo     domain.Repository
	renderer *fakeRenderer
	sender   *email.NoOpProvider
	slack    *recordingSlack
	archiver *recordingArchiver
	cfg      config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node := dbtest.Node(t)
	return &fixture{
		db:       dbtest.New(t),
		node:     node,
		clk:      clock.NewFakeClock(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)),
		repo:     repository.Provide(node),
		renderer: &fakeRenderer{fail: map[snowflake.ID]error{}},
		sender:   &email.NoOpProvider{},
		slack:    &recordingSlack{},
		archiver: &recordingArchiver{},
		cfg: config.Config{
			Slack: config.SlackConfig{AlertChannel: "#billing-ops"},
			Dispatch: config.DispatchConfig{
				SendTimeout:       200 * time.Millisecond,
				RenderConcurrency: 2,
				Subject:           "Weekly billing",
				PracticeName:      "Northside Therapy",
			},
		},
	}
}

func (f *fixture) service(t *testing.T, sender email.Provider) domain.Service {
	t.Helper()
	if sender == nil {
		sender = f.sender
	}
	return New(Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		Config:   f.cfg,
		Repo:     f.repo,
		Renderer: f.renderer,
		Sender:   sender,
		Archiver: f.archiver,
		Alerter:  slack.NewAlerter(f.slack, f.cfg, zap.NewNop()),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    f.db,
			Log:   zap.NewNop(),
			GenID: f.node,
			Repo:  auditrepo.Provide(),
			Clock: f.clk,
		}),
		Clock: f.clk,
	})
}

func (f *fixture) invoice(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO invoices (id, invoice_number, client_id, week_start, week_end, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, "INV-"+id.String(), f.node.Generate(),
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), "approved",
	).Error)
	return id
}

func (f *fixture) timesheet(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO timesheets (id, provider_id, client_id, start_date, end_date, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), f.node.Generate(),
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), "approved",
	).Error)
	return id
}

func (f *fixture) enqueue(t *testing.T, entityType domain.EntityType, entityID snowflake.ID, recipients ...string) domain.QueueItem {
	t.Helper()
	item, created, err := f.repo.Enqueue(context.Background(), f.db, domain.EnqueueRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Recipients: recipients,
		At:         f.clk.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return *item
}

func (f *fixture) statusOf(t *testing.T, id snowflake.ID) domain.Status {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM queue_items WHERE id = ?`, id).Scan(&status).Error)
	return domain.Status(status)
}

func (f *fixture) count(t *testing.T, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(query, args...).Scan(&n).Error)
	return n
}

func TestClaimAndSendDeliversOneBatch(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	inv1, inv2, ts := f.invoice(t), f.invoice(t), f.timesheet(t)
	f.enqueue(t, domain.EntityInvoice, inv1, "family@example.com")
	f.enqueue(t, domain.EntityInvoice, inv2, "Family@example.com")
	f.enqueue(t, domain.EntityTimesheet, ts)

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, result.Status)
	assert.Equal(t, 3, result.SentCount)
	assert.NotEmpty(t, result.BatchID)
	assert.Empty(t, result.RenderErrors)

	require.Equal(t, 1, f.sender.Sent())
	msg, ok := f.sender.Last()
	require.True(t, ok)
	assert.Equal(t, []string{"family@example.com"}, msg.To)
	assert.Equal(t, "Weekly billing (3)", msg.Subject)
	assert.Len(t, msg.Attachments, 3)
	assert.Contains(t, msg.HTML, "Northside Therapy")
	assert.Contains(t, msg.Text, "3 documents attached")

	assert.Equal(t, int64(3), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'SENT' AND batch_id = ?`, result.BatchID))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(DISTINCT sent_at) FROM queue_items WHERE batch_id = ?`, result.BatchID))
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM invoices WHERE status = 'emailed'`))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM timesheets WHERE id = ? AND status = 'emailed'`, ts))
	assert.Len(t, f.archiver.keys, 3)
	assert.Empty(t, f.slack.messages)
}

func TestClaimAndSendFailsWholeBatch(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, failingSender{err: errors.New("554 message rejected")})
	ids := make([]snowflake.ID, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com").ID)
	}

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{IDs: ids})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, 3, result.FailedCount)
	assert.Contains(t, result.Error, "554 message rejected")
	assert.Empty(t, result.BatchID)

	assert.Equal(t, int64(3), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'FAILED'`))
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(DISTINCT error_message) FROM queue_items`))
	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'SENDING'`))
	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE batch_id IS NOT NULL`))
	assert.Equal(t, int64(3), f.count(t, `SELECT COUNT(*) FROM invoices WHERE status = 'approved'`))
	assert.Len(t, f.slack.messages, 1)
	assert.Empty(t, f.archiver.keys)
}

func TestClaimAndSendTimesOut(t *testing.T) {
	f := newFixture(t)
	f.cfg.Dispatch.SendTimeout = 20 * time.Millisecond
	svc := f.service(t, blockingSender{})
	item := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{IDs: []snowflake.ID{item.ID}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Contains(t, result.Error, context.DeadlineExceeded.Error())
	assert.Equal(t, domain.StatusFailed, f.statusOf(t, item.ID))
}

func TestClaimAndSendKeepsSiblingsOfFailedRender(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	good := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")
	broken := f.invoice(t)
	bad := f.enqueue(t, domain.EntityInvoice, broken, "family@example.com")
	f.renderer.fail[broken] = errors.New("template exploded")

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, result.Status)
	assert.Equal(t, 2, result.SentCount)
	require.Len(t, result.RenderErrors, 1)
	assert.Equal(t, bad.ID, result.RenderErrors[0].ItemID)

	msg, _ := f.sender.Last()
	assert.Len(t, msg.Attachments, 1)
	assert.Equal(t, domain.StatusSent, f.statusOf(t, good.ID))
	assert.Equal(t, domain.StatusSent, f.statusOf(t, bad.ID))
}

func TestClaimAndSendAllRendersFailed(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	a, b := f.invoice(t), f.timesheet(t)
	f.enqueue(t, domain.EntityInvoice, a, "family@example.com")
	f.enqueue(t, domain.EntityTimesheet, b)
	f.renderer.fail[a] = &domain.RenderError{EntityType: domain.EntityInvoice, EntityID: a, Err: errors.New("no lines")}
	f.renderer.fail[b] = errors.New("workbook failed")

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.ErrAllRendersFailed.Error(), result.Error)
	assert.Len(t, result.RenderErrors, 2)
	assert.Equal(t, 0, f.sender.Sent())
	assert.Equal(t, int64(2), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'FAILED'`))
}

func TestClaimAndSendExcludesMissingSources(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	kept := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")
	gone := f.invoice(t)
	orphan := f.enqueue(t, domain.EntityInvoice, gone, "family@example.com")
	require.NoError(t, f.db.Exec(`UPDATE invoices SET deleted_at = ? WHERE id = ?`, f.clk.Now(), gone).Error)

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SentCount)
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, orphan.ID, result.Excluded[0].ItemID)
	assert.Equal(t, domain.StatusSent, f.statusOf(t, kept.ID))
	assert.Equal(t, domain.StatusQueued, f.statusOf(t, orphan.ID))
}

func TestClaimAndSendNothingToClaim(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)

	_, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptySelection)

	_, err = svc.ClaimAndSend(context.Background(), domain.DispatchRequest{IDs: []snowflake.ID{f.node.Generate()}})
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimAndSendIsExclusive(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	for i := 0; i < 4; i++ {
		f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sent    int
		nothing int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrNothingToClaim) {
				nothing++
				return
			}
			if err == nil {
				sent += result.SentCount
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, sent)
	assert.Equal(t, 1, nothing)
	assert.Equal(t, 1, f.sender.Sent())
	assert.Equal(t, int64(4), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'SENT' AND attempts = 1`))
}

func TestClaimAndSendWithoutRecipients(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	item := f.enqueue(t, domain.EntityTimesheet, f.timesheet(t))

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.ErrNoRecipients.Error(), result.Error)
	assert.Equal(t, domain.StatusFailed, f.statusOf(t, item.ID))
	assert.Equal(t, 0, f.sender.Sent())
}

func TestClaimAndSendUsesDefaultRecipients(t *testing.T) {
	f := newFixture(t)
	f.cfg.Dispatch.DefaultRecipients = []string{"office@example.com"}
	svc := f.service(t, nil)
	f.enqueue(t, domain.EntityTimesheet, f.timesheet(t))

	result, err := svc.ClaimAndSend(context.Background(), domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, result.Status)
	msg, _ := f.sender.Last()
	assert.Equal(t, []string{"office@example.com"}, msg.To)
}

func TestRemoveQueuedItem(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, failingSender{err: errors.New("down")})
	ctx := context.Background()
	queued := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")

	require.NoError(t, svc.Remove(ctx, queued.ID))
	assert.ErrorIs(t, svc.Remove(ctx, queued.ID), domain.ErrItemNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, 0), domain.ErrInvalidID)

	failed := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")
	_, err := svc.ClaimAndSend(ctx, domain.DispatchRequest{IDs: []snowflake.ID{failed.ID}})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Remove(ctx, failed.ID), domain.ErrInvalidTransition)
}

func TestRequeueFailedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")

	_, err := f.service(t, nil).Requeue(ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.service(t, failingSender{err: errors.New("down")}).ClaimAndSend(ctx, domain.DispatchRequest{All: true})
	require.NoError(t, err)

	svc := f.service(t, nil)
	requeued, err := svc.Requeue(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, requeued.Status)
	assert.Nil(t, requeued.ErrorMessage)
	assert.Nil(t, requeued.ClaimToken)

	result, err := svc.ClaimAndSend(ctx, domain.DispatchRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SentCount)
	assert.Equal(t, int64(1), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE id = ? AND attempts = 2`, item.ID))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		ids = append(ids, f.enqueue(t, domain.EntityInvoice, f.invoice(t)).ID)
		f.clk.Advance(time.Minute)
	}

	first, err := svc.List(context.Background(), domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[2], first.Items[0].ID)
	assert.Equal(t, ids[1], first.Items[1].ID)

	second, err := svc.List(context.Background(), domain.ListRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, ids[0], second.Items[0].ID)

	_, err = svc.List(context.Background(), domain.ListRequest{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = svc.List(context.Background(), domain.ListRequest{PageToken: "%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestStuckSendingItems(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	ctx := context.Background()
	a := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")
	b := f.enqueue(t, domain.EntityInvoice, f.invoice(t), "family@example.com")

	claim, err := f.repo.Claim(ctx, f.db, domain.ClaimRequest{All: true}, "orphaned-claim", f.clk.Now())
	require.NoError(t, err)
	require.Len(t, claim.Items, 2)

	stuck, err := svc.ListStuck(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stuck)

	f.clk.Advance(20 * time.Minute)
	stuck, err = svc.ListStuck(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Len(t, stuck, 2)

	_, err = svc.ListStuck(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	failed, err := svc.FailStuck(ctx, []snowflake.ID{a.ID}, 15*time.Minute, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, domain.StatusFailed, f.statusOf(t, a.ID))
	assert.Equal(t, domain.StatusSending, f.statusOf(t, b.ID))

	failed, err = svc.FailStuck(ctx, nil, 15*time.Minute, "smtp outage")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, int64(0), f.count(t, `SELECT COUNT(*) FROM queue_items WHERE status = 'SENDING'`))
}

func TestMergeRecipients(t *testing.T) {
	items := []domain.QueueItem{
		{Recipients: []string{"a@example.com", " B@example.com "}},
		{Recipients: []string{"b@example.com"}},
	}
	assert.Equal(t, []string{"ops@example.com", "a@example.com", "B@example.com"},
		mergeRecipients([]string{"ops@example.com", ""}, items, []string{"default@example.com"}))
	assert.Equal(t, []string{"default@example.com"},
		mergeRecipients(nil, []domain.QueueItem{{}}, []string{"default@example.com"}))
	assert.Empty(t, mergeRecipients(nil, nil, nil))
}

func TestAttachmentNamesAreUnique(t *testing.T) {
	used := map[string]int{}
	doc := domain.Document{EntityType: domain.EntityInvoice, EntityID: 7, FileName: "Invoice INV-2026-0001.PDF"}

	assert.Equal(t, "invoice-inv-2026-0001.pdf", attachmentName(doc, used))
	assert.Equal(t, "invoice-inv-2026-0001-2.pdf", attachmentName(doc, used))
	assert.Equal(t, "invoice-7", attachmentName(domain.Document{EntityType: domain.EntityInvoice, EntityID: 7}, used))
}
