package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/carebill/internal/audit/masking"
	"github.com/smallbiznis/carebill/internal/delivery/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/providers/email"
	"github.com/smallbiznis/carebill/internal/providers/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("carebill/delivery")

var errEmptyDocument = errors.New("empty document")

// ClaimAndSend claims the selected QUEUED items, renders their documents and
// delivers them as one message. Every claimed item resolves together.
func (s *Service) ClaimAndSend(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResult, error) {
	if !req.All && len(req.IDs) == 0 {
		return domain.DispatchResult{}, domain.ErrEmptySelection
	}

	ctx, span := tracer.Start(ctx, "delivery.claim_and_send", trace.WithAttributes(
		attribute.Bool("delivery.all", req.All),
		attribute.Int("delivery.requested", len(req.IDs)),
	))
	defer span.End()

	token := uuid.NewString()
	var claim domain.ClaimResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claim, err = s.repo.Claim(ctx, tx, domain.ClaimRequest{IDs: req.IDs, All: req.All}, token, s.clock.Now())
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.DispatchResult{}, err
	}

	result := domain.DispatchResult{Excluded: claim.Excluded}
	for _, excluded := range claim.Excluded {
		s.log.Warn("queue item excluded from batch",
			zap.String("item_id", excluded.ItemID.String()),
			zap.String("entity_type", string(excluded.EntityType)),
			zap.String("entity_id", excluded.EntityID.String()),
			zap.String("reason", excluded.Reason),
		)
	}
	if len(claim.Items) == 0 {
		s.delivery.IncBatch(metrics.BatchOutcomeEmpty)
		return result, domain.ErrNothingToClaim
	}
	span.SetAttributes(attribute.Int("delivery.claimed", len(claim.Items)))

	recipients := mergeRecipients(req.Recipients, claim.Items, s.cfg.DefaultRecipients)
	if len(recipients) == 0 {
		return s.fail(ctx, claim, result, nil, domain.ErrNoRecipients.Error(), metrics.BatchOutcomeFailed)
	}

	docs, renderErrors := s.renderAll(ctx, claim.Items)
	result.RenderErrors = renderErrors
	if len(docs) == 0 {
		return s.fail(ctx, claim, result, recipients, domain.ErrAllRendersFailed.Error(), metrics.BatchOutcomeRenderError)
	}

	msg, err := s.compose(docs, recipients, s.clock.Now())
	if err != nil {
		return s.fail(ctx, claim, result, recipients, (&domain.DeliveryError{Err: err}).Error(), metrics.BatchOutcomeFailed)
	}

	if err := s.send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return s.fail(ctx, claim, result, recipients, (&domain.DeliveryError{Err: err}).Error(), metrics.BatchOutcomeFailed)
	}
	return s.succeed(ctx, claim, result, recipients, msg.Attachments)
}

// send makes exactly one attempt bounded by the configured timeout.
func (s *Service) send(ctx context.Context, msg email.Message) error {
	ctx, span := tracer.Start(ctx, "delivery.send", trace.WithAttributes(
		attribute.Int("delivery.attachments", len(msg.Attachments)),
		attribute.Int("delivery.recipients", len(msg.To)),
	))
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- s.sender.Send(sendCtx, msg) }()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		// A sender that ignores its context still cannot hold the batch past the timeout.
		err = sendCtx.Err()
	}
	s.delivery.ObserveSendDuration(time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

type rendered struct {
	item domain.QueueItem
	doc  domain.Document
	err  error
}

// renderAll renders every item concurrently. Failed items are reported and left
// out of the attachments; they still resolve with the rest of the claim.
func (s *Service) renderAll(ctx context.Context, items []domain.QueueItem) ([]domain.Document, []domain.ItemError) {
	results := make([]rendered, len(items))

	var g errgroup.Group
	g.SetLimit(s.cfg.RenderConcurrency)
	for i, item := range items {
		g.Go(func() error {
			doc, err := s.renderOne(ctx, item)
			results[i] = rendered{item: item, doc: doc, err: err}
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]domain.Document, 0, len(items))
	var failures []domain.ItemError
	for _, r := range results {
		if r.err != nil {
			s.delivery.IncRenderFailure(string(r.item.EntityType))
			s.log.Warn("document render failed",
				zap.String("item_id", r.item.ID.String()),
				zap.String("entity_type", string(r.item.EntityType)),
				zap.String("entity_id", r.item.EntityID.String()),
				zap.Error(r.err),
			)
			failures = append(failures, domain.ItemError{
				ItemID:     r.item.ID,
				EntityType: r.item.EntityType,
				EntityID:   r.item.EntityID,
				Error:      r.err.Error(),
			})
			continue
		}
		docs = append(docs, r.doc)
	}
	return docs, failures
}

func (s *Service) renderOne(ctx context.Context, item domain.QueueItem) (domain.Document, error) {
	ctx, span := tracer.Start(ctx, "delivery.render", trace.WithAttributes(
		attribute.String("delivery.entity_type", string(item.EntityType)),
		attribute.String("delivery.entity_id", item.EntityID.String()),
	))
	defer span.End()

	doc, err := s.renderer.Render(ctx, item)
	if err == nil && len(doc.Content) == 0 {
		err = errEmptyDocument
	}
	if err != nil {
		var renderErr *domain.RenderError
		if !errors.As(err, &renderErr) {
			err = &domain.RenderError{EntityType: item.EntityType, EntityID: item.EntityID, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Document{}, err
	}
	if doc.EntityType == "" {
		doc.EntityType = item.EntityType
		doc.EntityID = item.EntityID
	}
	return doc, nil
}

func (s *Service) succeed(ctx context.Context, claim domain.ClaimResult, result domain.DispatchResult, recipients []string, attachments []email.Attachment) (domain.DispatchResult, error) {
	// The send already happened; persist its outcome even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	batchID := ulid.Make().String()
	sentAt := s.clock.Now()

	var sent int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sent, err = s.repo.Resolve(ctx, tx, claim.Token, domain.Resolution{
			Status:  domain.StatusSent,
			BatchID: batchID,
			SentAt:  sentAt,
		})
		if err != nil {
			return err
		}
		return s.repo.MarkEntitiesEmailed(ctx, tx, claim.Items, sentAt)
	})
	if err != nil {
		s.log.Error("failed to resolve sent batch; items remain SENDING",
			zap.String("batch_id", batchID),
			zap.Int("items", len(claim.Items)),
			zap.Error(err),
		)
		return result, err
	}
	s.warnPartialResolve(sent, claim)

	result.Status = domain.StatusSent
	result.SentCount = int(sent)
	result.BatchID = batchID
	s.delivery.IncBatch(metrics.BatchOutcomeSent)
	s.delivery.AddItemsResolved(string(domain.StatusSent), int(sent))

	s.archive(ctx, batchID, attachments)
	s.log.Info("delivery batch sent",
		zap.String("batch_id", batchID),
		zap.Int64("items", sent),
		zap.Int("attachments", len(attachments)),
		zap.Int("render_errors", len(result.RenderErrors)),
	)
	s.emitBatchAudit(ctx, "queue.batch_sent", batchID, claim, result, recipients)
	return result, nil
}

func (s *Service) fail(ctx context.Context, claim domain.ClaimResult, result domain.DispatchResult, recipients []string, message, outcome string) (domain.DispatchResult, error) {
	ctx = context.WithoutCancel(ctx)

	failed, err := s.repo.Resolve(ctx, s.db, claim.Token, domain.Resolution{
		Status: domain.StatusFailed,
		SentAt: s.clock.Now(),
		Error:  message,
	})
	if err != nil {
		s.log.Error("failed to resolve failed batch; items remain SENDING",
			zap.String("claim_token", claim.Token),
			zap.Int("items", len(claim.Items)),
			zap.Error(err),
		)
		return result, err
	}
	s.warnPartialResolve(failed, claim)

	result.Status = domain.StatusFailed
	result.FailedCount = int(failed)
	result.Error = message
	s.delivery.IncBatch(outcome)
	s.delivery.AddItemsResolved(string(domain.StatusFailed), int(failed))

	s.log.Warn("delivery batch failed",
		zap.Int64("items", failed),
		zap.Int("render_errors", len(result.RenderErrors)),
		zap.String("error", message),
	)
	s.alerter.Alert(ctx, fmt.Sprintf("Delivery batch failed for %d item(s): %s", failed, message))
	s.emitBatchAudit(ctx, "queue.batch_failed", claim.Token, claim, result, recipients)
	return result, nil
}

func (s *Service) warnPartialResolve(resolved int64, claim domain.ClaimResult) {
	if resolved == int64(len(claim.Items)) {
		return
	}
	// Only an operator FailStuck between claim and resolve moves claimed items.
	s.log.Warn("claimed items changed before resolve",
		zap.Int("claimed", len(claim.Items)),
		zap.Int64("resolved", resolved),
	)
}

func (s *Service) archive(ctx context.Context, batchID string, attachments []email.Attachment) {
	if !s.archiver.Enabled() {
		return
	}
	for _, attachment := range attachments {
		key := storage.BatchKey(batchID, attachment.FileName)
		if err := s.archiver.Put(ctx, key, attachment.ContentType, attachment.Content); err != nil {
			s.log.Warn("failed to archive delivered document",
				zap.String("batch_id", batchID),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) emitBatchAudit(ctx context.Context, action, batchRef string, claim domain.ClaimResult, result domain.DispatchResult, recipients []string) {
	if s.auditSvc == nil {
		return
	}
	itemIDs := make([]string, 0, len(claim.Items))
	for _, item := range claim.Items {
		itemIDs = append(itemIDs, item.ID.String())
	}
	metadata := map[string]any{
		"item_ids":      itemIDs,
		"recipients":    masking.MaskEmails(recipients),
		"render_errors": len(result.RenderErrors),
		"excluded":      len(result.Excluded),
	}
	if result.Error != "" {
		metadata["error"] = result.Error
	}
	_ = s.auditSvc.Record(ctx, action, "queue_batch", batchRef, "", metadata)
}
