package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/carebill/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: fmt.Errorf("dispatch: %w", authorization.ErrForbidden), want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "pg_unique_violation", err: &pgconn.PgError{Code: "23505"}, want: SchedulerJobReasonUniqueViolation},
		{name: "sqlite_unique_violation", err: errors.New("UNIQUE constraint failed: queue_items.entity_id"), want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
	if got := ClassifySchedulerErrorType(errors.New("rate missing")); got != SchedulerErrorTypeBusinessRule {
		t.Fatalf("expected business_rule, got %q", got)
	}
	if IsSchedulerErrorRetryable(errors.New("rate missing")) {
		t.Fatalf("business errors should not be retryable")
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{ServiceName: "carebill", Environment: "test"})

	metrics.AddBatchProcessed("stuck_sending", "queue_items", 3)
	metrics.AddBatchProcessed("stuck_sending", "queue_items", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("stuck_sending", "queue_items"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestDeliveryMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newDeliveryMetrics(registry, Config{ServiceName: "carebill", Environment: "test"})

	metrics.IncBatch(BatchOutcomeSent)
	metrics.AddItemsResolved("SENT", 4)
	metrics.SetStuckSending(2)

	if got := testutil.ToFloat64(metrics.batches.WithLabelValues(BatchOutcomeSent)); got != 1 {
		t.Fatalf("expected 1 batch, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.itemsResolved.WithLabelValues("SENT")); got != 4 {
		t.Fatalf("expected 4 items, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.stuckSending); got != 2 {
		t.Fatalf("expected stuck gauge 2, got %v", got)
	}
}
