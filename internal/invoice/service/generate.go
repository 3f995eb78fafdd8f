package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/carebill/internal/invoice/format"
	obsctx "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxNumberAttempts bounds retries when an allocated number is already taken.
const maxNumberAttempts = 3

const (
	outcomeCreated = "created"
	outcomeSkipped = "skipped"
	outcomeErrored = "errored"
)

type entryGroup struct {
	key     invoicedomain.GroupKey
	entries []invoicedomain.EligibleEntry
}

// Generate pools unbilled entries of the given timesheets by client and week and
// writes one invoice per group. Groups succeed or fail independently.
func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	ids, err := parseTimesheetIDs(req.TimesheetIDs)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	entries, err := s.repo.ListEligibleEntries(ctx, s.db, ids, req.StandardOnly)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	invoiced, err := s.repo.ListInvoicedTimesheets(ctx, s.db, ids)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	groups := groupEntries(entries)
	result := invoicedomain.GenerateResult{
		Created: []invoicedomain.CreatedInvoice{},
		Skipped: alreadyInvoiced(groups, invoiced),
		Errors:  []invoicedomain.GroupError{},
	}
	for _, group := range groups {
		weekStart := formatDate(group.key.WeekStart)
		created, invoice, err := s.generateGroup(ctx, group)

		var duplicate *invoicedomain.DuplicateInvoiceError
		switch {
		case err == nil:
			result.Created = append(result.Created, created)
			s.metrics.RecordInvoiceGroup(ctx, outcomeCreated)
			s.metrics.RecordInvoiceAmount(ctx, created.TotalAmount.InexactFloat64())
			s.emitAudit(ctx, "invoice.generated", invoice, map[string]any{
				"entry_count": created.EntryCount,
				"total_units": created.TotalUnits.String(),
			})
		case errors.As(err, &duplicate):
			result.Skipped = append(result.Skipped, invoicedomain.SkippedGroup{
				ClientID:      group.key.ClientID,
				WeekStart:     weekStart,
				Reason:        "invoice already exists",
				InvoiceNumber: duplicate.InvoiceNumber,
			})
			s.metrics.RecordInvoiceGroup(ctx, outcomeSkipped)
		default:
			s.log.Warn("invoice group failed",
				zap.String("client_id", group.key.ClientID.String()),
				zap.String("week_start", weekStart),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, invoicedomain.GroupError{
				ClientID:  group.key.ClientID,
				WeekStart: weekStart,
				Code:      groupErrorCode(err),
				Error:     err.Error(),
			})
			s.metrics.RecordInvoiceGroup(ctx, outcomeErrored)
		}
	}

	delivery := metrics.Delivery()
	delivery.AddInvoiceGroups(outcomeCreated, len(result.Created))
	delivery.AddInvoiceGroups(outcomeSkipped, len(result.Skipped))
	delivery.AddInvoiceGroups(outcomeErrored, len(result.Errors))

	s.log.Info("invoice generation finished",
		zap.Int("timesheets", len(ids)),
		zap.Int("eligible_entries", len(entries)),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) generateGroup(ctx context.Context, group entryGroup) (invoicedomain.CreatedInvoice, *invoicedomain.Invoice, error) {
	var (
		created invoicedomain.CreatedInvoice
		invoice *invoicedomain.Invoice
	)
	key := group.key
	now := s.clock.Now()
	_, actorID := obsctx.ActorFromContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.guard(ctx, tx, key); err != nil {
			return err
		}

		pricer, err := s.newPricer(ctx, tx, key.ClientID)
		if err != nil {
			return err
		}

		inv := invoicedomain.Invoice{
			ID:          s.genID.Generate(),
			ClientID:    key.ClientID,
			WeekStart:   key.WeekStart,
			WeekEnd:     key.WeekEnd(),
			PaidAmount:  decimal.Zero,
			Adjustments: decimal.Zero,
			Status:      invoicedomain.InvoiceStatusDraft,
			CreatedBy:   actorID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		var totals ratingdomain.Totals
		lines := make([]invoicedomain.InvoiceEntry, 0, len(group.entries))
		entryIDs := make([]snowflake.ID, 0, len(group.entries))
		timesheetIDs := make([]snowflake.ID, 0)
		seenTimesheet := make(map[snowflake.ID]struct{})
		for _, entry := range group.entries {
			priced, err := pricer.price(entry.DurationMinutes, entry.ServiceTag, entry.IsSupervisory)
			if err != nil {
				return err
			}
			totals.Add(priced)
			lines = append(lines, invoicedomain.InvoiceEntry{
				ID:          s.genID.Generate(),
				InvoiceID:   inv.ID,
				TimeEntryID: entry.EntryID,
				TimesheetID: entry.TimesheetID,
				ProviderID:  entry.ProviderID,
				PayerID:     pricer.payerID,
				ServiceDate: entry.EntryDate,
				ServiceTag:  entry.ServiceTag,
				Minutes:     entry.DurationMinutes,
				Units:       priced.Units,
				Rate:        priced.Rate,
				Amount:      priced.Amount,
				Suppressed:  priced.Suppressed,
				CreatedAt:   now,
			})
			entryIDs = append(entryIDs, entry.EntryID)
			if _, ok := seenTimesheet[entry.TimesheetID]; !ok {
				seenTimesheet[entry.TimesheetID] = struct{}{}
				timesheetIDs = append(timesheetIDs, entry.TimesheetID)
			}
		}
		inv.TotalAmount = totals.Amount.Round(2)
		inv.TotalUnits = totals.Units.Round(4)
		inv.OutstandingBalance = outstanding(&inv)

		if err := s.insertNumbered(ctx, tx, &inv, now); err != nil {
			return err
		}
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return err
		}

		billed, err := s.repo.MarkEntriesBilled(ctx, tx, entryIDs, now)
		if err != nil {
			return err
		}
		if billed != int64(len(entryIDs)) {
			// Another run billed some of these entries after they were listed.
			return &invoicedomain.ConcurrencyConflict{Op: "mark_billed"}
		}
		if err := s.repo.LinkTimesheets(ctx, tx, timesheetIDs, inv.ID, now); err != nil {
			return err
		}

		invoice = &inv
		created = invoicedomain.CreatedInvoice{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ClientID:      inv.ClientID,
			WeekStart:     formatDate(inv.WeekStart),
			TotalAmount:   inv.TotalAmount,
			TotalUnits:    inv.TotalUnits,
			EntryCount:    len(lines),
		}
		return nil
	})
	if err != nil {
		return invoicedomain.CreatedInvoice{}, nil, err
	}
	return created, invoice, nil
}

// guard skips a group when a live invoice already covers any day of its week.
func (s *Service) guard(ctx context.Context, tx *gorm.DB, key invoicedomain.GroupKey) error {
	existing, err := s.repo.FindOverlapping(ctx, tx, key.ClientID, key.WeekStart, key.WeekEnd())
	if err != nil {
		return err
	}
	if existing != nil {
		return &invoicedomain.DuplicateInvoiceError{
			ClientID:      key.ClientID,
			WeekStart:     key.WeekStart,
			InvoiceNumber: existing.InvoiceNumber,
		}
	}
	return nil
}

// insertNumbered allocates the next yearly number and inserts the header. A
// conflict is either a concurrent invoice for the same week (reported as a
// duplicate) or a taken number (retried with the next value).
func (s *Service) insertNumbered(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, now time.Time) error {
	rules := s.rules.Get()
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		seq, err := s.repo.NextSequence(ctx, tx, now.Year())
		if err != nil {
			return err
		}
		number, err := invoiceformat.FormatInvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, rules.InvoicePrefix, now, seq)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number

		inserted, err := s.repo.Insert(ctx, tx, inv)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		if err := s.guard(ctx, tx, invoicedomain.GroupKey{ClientID: inv.ClientID, WeekStart: inv.WeekStart}); err != nil {
			return err
		}
		s.log.Warn("invoice number already taken, retrying",
			zap.String("invoice_number", number),
			zap.Int("attempt", attempt),
		)
	}
	return &invoicedomain.ConcurrencyConflict{Op: "invoice_number", Attempts: maxNumberAttempts}
}

// pricer resolves a client's payer rates once per program and prices entries.
type pricer struct {
	rating  ratingdomain.Service
	rates   ratingdomain.PayerRates
	payerID *snowflake.ID
	cache   map[bool]ratingdomain.Rate
}

func (s *Service) newPricer(ctx context.Context, tx *gorm.DB, clientID snowflake.ID) (*pricer, error) {
	p := &pricer{rating: s.rating, cache: make(map[bool]ratingdomain.Rate, 2)}
	payer, err := s.clientRepo.FindPayerForClient(ctx, tx, clientID)
	if err != nil {
		return nil, err
	}
	if payer != nil {
		p.rates = payer.Rates()
		payerID := payer.ID
		p.payerID = &payerID
	}
	return p, nil
}

func (p *pricer) price(minutes int, serviceTag string, supervisory bool) (ratingdomain.Line, error) {
	rate, ok := p.cache[supervisory]
	if !ok {
		resolved, err := p.rating.Resolve(p.rates, supervisory)
		if err != nil {
			return ratingdomain.Line{}, err
		}
		p.cache[supervisory] = resolved
		rate = resolved
	}
	return p.rating.Calculate(ratingdomain.LineInput{
		Minutes:              minutes,
		ServiceTag:           serviceTag,
		SupervisoryTimesheet: supervisory,
	}, rate), nil
}

// groupEntries pools entries by client and the ISO week of their timesheet's start date.
func groupEntries(entries []invoicedomain.EligibleEntry) []entryGroup {
	index := make(map[invoicedomain.GroupKey]int)
	groups := make([]entryGroup, 0)
	for _, entry := range entries {
		key := invoicedomain.GroupKey{
			ClientID:  entry.ClientID,
			WeekStart: invoicedomain.WeekStartOf(entry.TimesheetStart),
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, entryGroup{key: key})
		}
		groups[i].entries = append(groups[i].entries, entry)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].key.ClientID != groups[j].key.ClientID {
			return groups[i].key.ClientID < groups[j].key.ClientID
		}
		return groups[i].key.WeekStart.Before(groups[j].key.WeekStart)
	})
	return groups
}

// alreadyInvoiced reports groups with no billable entries left whose timesheets
// already belong to an invoice, so a repeated request shows them as skipped.
func alreadyInvoiced(groups []entryGroup, invoiced []invoicedomain.InvoicedTimesheet) []invoicedomain.SkippedGroup {
	pending := make(map[invoicedomain.GroupKey]struct{}, len(groups))
	for _, group := range groups {
		pending[group.key] = struct{}{}
	}

	skipped := make([]invoicedomain.SkippedGroup, 0)
	reported := make(map[invoicedomain.GroupKey]struct{})
	for _, ts := range invoiced {
		key := invoicedomain.GroupKey{ClientID: ts.ClientID, WeekStart: invoicedomain.WeekStartOf(ts.TimesheetStart)}
		if _, ok := pending[key]; ok {
			continue
		}
		if _, ok := reported[key]; ok {
			continue
		}
		reported[key] = struct{}{}
		skipped = append(skipped, invoicedomain.SkippedGroup{
			ClientID:      key.ClientID,
			WeekStart:     formatDate(key.WeekStart),
			Reason:        "invoice already exists",
			InvoiceNumber: ts.InvoiceNumber,
		})
	}
	return skipped
}

func parseTimesheetIDs(raw []string) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, len(raw))
	ids := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		id, err := snowflake.ParseString(value)
		if err != nil || id == 0 {
			return nil, invoicedomain.ErrInvalidTimesheetID
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, invoicedomain.ErrEmptySelection
	}
	return ids, nil
}

func groupErrorCode(err error) string {
	switch {
	case errors.Is(err, ratingdomain.ErrMissingRate):
		return "missing_rate"
	case errors.Is(err, invoicedomain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	default:
		return "internal_error"
	}
}
