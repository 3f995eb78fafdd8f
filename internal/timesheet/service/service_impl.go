package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
	obsctx "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/timesheet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Enqueuer deliverydomain.Enqueuer
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	enqueuer deliverydomain.Enqueuer
	auditSvc auditdomain.Service
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("timesheet.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		enqueuer: p.Enqueuer,
		auditSvc: p.AuditSvc,
		clock:    clk,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTimesheetRequest) (domain.Timesheet, error) {
	providerID, err := parseID("provider_id", req.ProviderID)
	if err != nil {
		return domain.Timesheet{}, err
	}
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return domain.Timesheet{}, err
	}
	intervals, err := domain.ParseEntries(req.Entries)
	if err != nil {
		return domain.Timesheet{}, err
	}
	startDate, endDate, err := resolveRange(optional(req.StartDate), optional(req.EndDate), intervals)
	if err != nil {
		return domain.Timesheet{}, err
	}

	_, actorID := obsctx.ActorFromContext(ctx)
	now := s.clock.Now()
	ts := domain.Timesheet{
		ID:            s.genID.Generate(),
		ProviderID:    providerID,
		ClientID:      clientID,
		StartDate:     startDate,
		EndDate:       endDate,
		Status:        domain.StatusDraft,
		IsSupervisory: req.IsSupervisory,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ts.Entries = s.buildEntries(ts.ID, intervals, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.ClientExists(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrClientNotFound
		}

		if !ts.IsSupervisory {
			conflicts, err := s.detectOverlaps(ctx, tx, providerID, clientID, intervals, nil)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &domain.OverlapError{Conflicts: conflicts}
			}
		}

		if err := s.repo.Insert(ctx, tx, &ts); err != nil {
			return err
		}
		return s.repo.InsertEntries(ctx, tx, ts.Entries)
	})
	if err != nil {
		return domain.Timesheet{}, err
	}

	s.metrics.RecordTimesheetEvent(ctx, "created")
	s.emitAudit(ctx, "timesheet.created", ts.ID, map[string]any{
		"client_id":      ts.ClientID.String(),
		"provider_id":    ts.ProviderID.String(),
		"is_supervisory": ts.IsSupervisory,
		"entries":        len(ts.Entries),
	})
	return ts, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateTimesheetRequest) (domain.Timesheet, error) {
	if id == 0 {
		return domain.Timesheet{}, domain.ErrInvalidID
	}

	var candidates []domain.Interval
	if req.Entries != nil {
		parsed, err := domain.ParseEntries(*req.Entries)
		if err != nil {
			return domain.Timesheet{}, err
		}
		candidates = parsed
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if ts == nil {
			return domain.ErrNotFound
		}
		if ts.Status == domain.StatusLocked {
			return domain.ErrTimesheetLocked
		}

		current, err := s.repo.ListEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		kept := make([]domain.Interval, 0, len(current))
		billed := 0
		for _, entry := range current {
			if !entry.Billed {
				continue
			}
			billed++
			if interval, err := domain.IntervalOf(entry); err == nil {
				kept = append(kept, interval)
			}
		}

		becameStandard := false
		if req.IsSupervisory != nil && *req.IsSupervisory != ts.IsSupervisory {
			if billed > 0 {
				return domain.ErrTimesheetBilled
			}
			becameStandard = ts.IsSupervisory
			ts.IsSupervisory = *req.IsSupervisory
		}

		effective := kept
		if req.Entries != nil {
			effective = append(append([]domain.Interval{}, kept...), candidates...)
		} else {
			for _, entry := range current {
				if entry.Billed {
					continue
				}
				if interval, err := domain.IntervalOf(entry); err == nil {
					effective = append(effective, interval)
				}
			}
		}

		ts.StartDate, ts.EndDate, err = resolveRange(
			pickDate(req.StartDate, ts.StartDate),
			pickDate(req.EndDate, ts.EndDate),
			effective,
		)
		if err != nil {
			return err
		}

		// Entries that were supervisory time become standard time and must clear the detector too.
		if !ts.IsSupervisory && (req.Entries != nil || becameStandard) {
			var conflicts []domain.Conflict
			if req.Entries != nil {
				conflicts, err = s.detectOverlaps(ctx, tx, ts.ProviderID, ts.ClientID, candidates, &ts.ID)
				if err != nil {
					return err
				}
				conflicts = append(conflicts, siblingConflicts(candidates, kept)...)
			} else {
				conflicts, err = s.detectOverlaps(ctx, tx, ts.ProviderID, ts.ClientID, effective, &ts.ID)
				if err != nil {
					return err
				}
			}
			if len(conflicts) > 0 {
				return &domain.OverlapError{Conflicts: conflicts}
			}
		}

		ts.UpdatedAt = now
		if err := s.repo.UpdateHeader(ctx, tx, ts); err != nil {
			return err
		}
		if req.Entries == nil {
			return nil
		}
		if err := s.repo.DeleteUnbilledEntries(ctx, tx, ts.ID); err != nil {
			return err
		}
		return s.repo.InsertEntries(ctx, tx, s.buildEntries(ts.ID, candidates, now))
	})
	if err != nil {
		return domain.Timesheet{}, err
	}

	s.metrics.RecordTimesheetEvent(ctx, "updated")
	s.emitAudit(ctx, "timesheet.updated", id, map[string]any{
		"entries_replaced": req.Entries != nil,
	})
	return s.Get(ctx, id)
}

// Approve moves a draft timesheet to approved and queues it for delivery in the same transaction.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) (domain.Timesheet, error) {
	if id == 0 {
		return domain.Timesheet{}, domain.ErrInvalidID
	}

	var queued *deliverydomain.QueueItem
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if ts == nil {
			return domain.ErrNotFound
		}
		if ts.Status != domain.StatusDraft {
			return domain.ErrInvalidStatus
		}

		ok, err := s.repo.TransitionStatus(ctx, tx, id, domain.StatusDraft, domain.StatusApproved, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}

		item, _, err := s.enqueuer.Enqueue(ctx, tx, deliverydomain.EnqueueRequest{
			EntityType: deliverydomain.EntityTimesheet,
			EntityID:   id,
			At:         now,
		})
		if err != nil {
			return err
		}
		queued = item
		return nil
	})
	if err != nil {
		return domain.Timesheet{}, err
	}

	s.metrics.RecordTimesheetEvent(ctx, "approved")
	s.metrics.RecordEnqueued(ctx, string(deliverydomain.EntityTimesheet))
	meta := map[string]any{}
	if queued != nil {
		meta["queue_item_id"] = queued.ID.String()
	}
	s.emitAudit(ctx, "timesheet.approved", id, meta)
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if ts == nil {
			return domain.ErrNotFound
		}
		if ts.Status == domain.StatusLocked {
			return domain.ErrTimesheetLocked
		}
		billed, err := s.repo.CountBilledEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		if billed > 0 {
			return domain.ErrTimesheetBilled
		}
		ok, err := s.repo.SoftDelete(ctx, tx, id, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordTimesheetEvent(ctx, "deleted")
	s.emitAudit(ctx, "timesheet.deleted", id, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Timesheet, error) {
	if id == 0 {
		return domain.Timesheet{}, domain.ErrInvalidID
	}
	ts, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Timesheet{}, err
	}
	if ts == nil {
		return domain.Timesheet{}, domain.ErrNotFound
	}
	entries, err := s.repo.ListEntries(ctx, s.db, id)
	if err != nil {
		return domain.Timesheet{}, err
	}
	ts.Entries = entries
	return *ts, nil
}

// CheckOverlaps reports every candidate entry that intersects recorded standard time
// for the same provider or client. Supervisory-program submissions are never checked.
func (s *Service) CheckOverlaps(ctx context.Context, req domain.OverlapRequest) ([]domain.Conflict, error) {
	if req.ProviderID == 0 {
		return nil, domain.NewValidationError("provider_id", "required", "provider_id is required")
	}
	if req.ClientID == 0 {
		return nil, domain.NewValidationError("client_id", "required", "client_id is required")
	}
	candidates, err := domain.ParseEntries(req.Entries)
	if err != nil {
		return nil, err
	}
	if req.Supervisory {
		return []domain.Conflict{}, nil
	}
	return s.detectOverlaps(ctx, s.db, req.ProviderID, req.ClientID, candidates, req.ExcludeTimesheetID)
}

func (s *Service) buildEntries(timesheetID snowflake.ID, intervals []domain.Interval, now time.Time) []domain.TimeEntry {
	entries := make([]domain.TimeEntry, 0, len(intervals))
	for _, interval := range intervals {
		entries = append(entries, domain.TimeEntry{
			ID:              s.genID.Generate(),
			TimesheetID:     timesheetID,
			EntryDate:       interval.Date,
			StartTime:       interval.StartClock(),
			EndTime:         interval.EndClock(),
			DurationMinutes: interval.Minutes(),
			ServiceTag:      strings.TrimSpace(interval.ServiceTag),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return entries
}

func (s *Service) emitAudit(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, action, "timesheet", id.String(), "", metadata)
}

func siblingConflicts(candidates, kept []domain.Interval) []domain.Conflict {
	var conflicts []domain.Conflict
	for ci, candidate := range candidates {
		for _, existing := range kept {
			if !candidate.Overlaps(existing) {
				continue
			}
			conflicts = append(conflicts, domain.Conflict{
				CandidateIndex:    ci,
				Date:              candidate.Date.Format(domain.DateLayout),
				StartTime:         candidate.StartClock(),
				EndTime:           candidate.EndClock(),
				ExistingStartTime: existing.StartClock(),
				ExistingEndTime:   existing.EndClock(),
				Reason:            domain.ConflictReasonSibling,
			})
		}
	}
	return conflicts
}

func parseID(field, value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.NewValidationError(field, "invalid_id", field+" must be a valid id")
	}
	return id, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func pickDate(requested *string, current time.Time) *string {
	if requested != nil {
		return optional(*requested)
	}
	if current.IsZero() {
		return nil
	}
	formatted := current.Format(domain.DateLayout)
	return &formatted
}

// resolveRange returns the timesheet period; missing bounds come from the entries.
func resolveRange(start, end *string, intervals []domain.Interval) (time.Time, time.Time, error) {
	var minDate, maxDate time.Time
	for i, interval := range intervals {
		if i == 0 || interval.Date.Before(minDate) {
			minDate = interval.Date
		}
		if i == 0 || interval.Date.After(maxDate) {
			maxDate = interval.Date
		}
	}

	verr := &domain.ValidationError{}
	startDate, endDate := minDate, maxDate
	if start != nil {
		parsed, err := domain.ParseDate(*start)
		if err != nil {
			verr.Errors = append(verr.Errors, domain.FieldError{Field: "start_date", Code: "invalid_format", Message: "start_date must be YYYY-MM-DD"})
		} else {
			startDate = parsed
		}
	}
	if end != nil {
		parsed, err := domain.ParseDate(*end)
		if err != nil {
			verr.Errors = append(verr.Errors, domain.FieldError{Field: "end_date", Code: "invalid_format", Message: "end_date must be YYYY-MM-DD"})
		} else {
			endDate = parsed
		}
	}
	if len(verr.Errors) > 0 {
		return time.Time{}, time.Time{}, verr
	}
	if startDate.IsZero() || endDate.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("start_date", "required", "timesheet period cannot be derived without entries")
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, domain.NewValidationError("end_date", "invalid_range", "end_date must not be before start_date")
	}
	for _, interval := range intervals {
		if interval.Date.Before(startDate) || interval.Date.After(endDate) {
			return time.Time{}, time.Time{}, domain.NewValidationError("entries", "out_of_range", "every entry must fall inside the timesheet period")
		}
	}
	return startDate, endDate, nil
}
