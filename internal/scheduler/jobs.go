package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	"go.uber.org/zap"
)

// StuckSendingJob reports items left SENDING past the recovery threshold.
// It never re-claims or fails them; an operator decides with FailStuck.
func (s *Scheduler) StuckSendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobStuckSending)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	items, err := s.deliverySvc.ListStuck(ctx, s.cfg.RecoveryThreshold)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.stuck_sending.list_failed", JobStuckSending, err)
		return err
	}
	run.AddProcessed(len(items))
	if len(items) == 0 {
		obsmetrics.Scheduler().IncBatchDeferred(JobStuckSending, obsmetrics.SchedulerBatchDeferredReasonEmpty)
		return nil
	}
	obsmetrics.Scheduler().AddBatchProcessed(JobStuckSending, "queue_item", len(items))

	oldest := items[0]
	for _, item := range items[1:] {
		if claimedAt(item).Before(claimedAt(oldest)) {
			oldest = item
		}
	}
	age := s.clock.Now().Sub(claimedAt(oldest)).Truncate(time.Second)

	s.logger(ctx).Warn("queue items stuck in SENDING",
		zap.Int("count", len(items)),
		zap.Duration("threshold", s.cfg.RecoveryThreshold),
		zap.String("oldest_item_id", oldest.ID.String()),
		zap.Duration("oldest_age", age),
	)
	s.alerter.Alert(ctx, fmt.Sprintf(
		"%d queue item(s) stuck in SENDING longer than %s (oldest %s, %s). Review and fail them from the queue.",
		len(items), s.cfg.RecoveryThreshold, oldest.ID, age,
	))
	return nil
}

// AutoDispatchJob claims every eligible QUEUED item and sends it as one batch.
func (s *Scheduler) AutoDispatchJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobAutoDispatch)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.deliverySvc.ClaimAndSend(ctx, deliverydomain.DispatchRequest{All: true})
	if errors.Is(err, deliverydomain.ErrNothingToClaim) {
		obsmetrics.Scheduler().IncBatchDeferred(JobAutoDispatch, obsmetrics.SchedulerBatchDeferredReasonEmpty)
		return nil
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.auto_dispatch.failed", JobAutoDispatch, err)
		return err
	}

	resolved := result.SentCount + result.FailedCount
	run.AddProcessed(resolved)
	obsmetrics.Scheduler().AddBatchProcessed(JobAutoDispatch, "queue_item", resolved)
	s.emitAuditEvent(ctx, "scheduler.auto_dispatch", map[string]any{
		"status":        string(result.Status),
		"batch_id":      result.BatchID,
		"sent":          result.SentCount,
		"failed":        result.FailedCount,
		"render_errors": len(result.RenderErrors),
		"excluded":      len(result.Excluded),
	})
	if result.Status == deliverydomain.StatusFailed {
		run.IncError()
	}
	return nil
}

func claimedAt(item deliverydomain.QueueItem) time.Time {
	if item.ClaimedAt != nil {
		return *item.ClaimedAt
	}
	return item.UpdatedAt
}

func (s *Scheduler) emitAuditEvent(ctx context.Context, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	run := jobRunFromContext(ctx)
	entityID := ""
	if run != nil {
		entityID = run.runID
	}
	if err := s.auditSvc.Record(ctx, action, "scheduler_run", entityID, "", metadata); err != nil {
		s.logger(ctx).Warn("failed to record scheduler audit", zap.String("action", action), zap.Error(err))
	}
}
