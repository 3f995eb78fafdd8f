package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/audit/repository"
	"github.com/smallbiznis/carebill/internal/clock"
	obsctx "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/smallbiznis/carebill/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.New(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func TestRecordPersistsEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obsctx.WithRequestID(context.Background(), "req-1")

	err := svc.Record(ctx, "invoice.created", "invoice", "42", "user-7", map[string]any{
		"invoice_number": "INV-2024-0001",
		"":               "dropped",
	})
	require.NoError(t, err)

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{EntityType: "invoice", EntityID: "42"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "invoice.created", logs[0].Action)
	assert.Equal(t, "user", logs[0].ActorType)
	assert.Equal(t, "user-7", logs[0].ActorID)
	assert.Equal(t, "req-1", logs[0].RequestID)
	assert.Equal(t, "INV-2024-0001", logs[0].Metadata["invoice_number"])
	assert.NotContains(t, logs[0].Metadata, "")
}

func TestRecordResolvesActorFromContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obsctx.WithActor(context.Background(), "system", "scheduler")

	require.NoError(t, svc.Record(ctx, "queue.recovered", "queue_item", "9", "", nil))

	logs, err := svc.List(context.Background(), auditdomain.ListFilter{Action: "queue.recovered"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ActorType)
	assert.Equal(t, "scheduler", logs[0].ActorID)
}

func TestRecordRejectsBlankAction(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Record(context.Background(), " ", "invoice", "1", "", nil), auditdomain.ErrInvalidAction)
	assert.ErrorIs(t, svc.Record(context.Background(), "x", "", "1", "", nil), auditdomain.ErrInvalidEntityType)
}
