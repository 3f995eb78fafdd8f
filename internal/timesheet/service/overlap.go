package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/timesheet/domain"
	"gorm.io/gorm"
)

// findConflicts compares candidates with recorded standard intervals and with each other.
// Every collision is reported; a candidate may appear more than once.
func findConflicts(providerID snowflake.ID, candidates []domain.Interval, existing []domain.ExistingInterval) []domain.Conflict {
	conflicts := make([]domain.Conflict, 0)

	parsed := make([]domain.Interval, len(existing))
	valid := make([]bool, len(existing))
	for i, row := range existing {
		interval, err := domain.IntervalOf(domain.TimeEntry{
			EntryDate: row.EntryDate,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
		})
		if err != nil {
			continue
		}
		parsed[i] = interval
		valid[i] = true
	}

	for ci, candidate := range candidates {
		for ei, row := range existing {
			if !valid[ei] || !candidate.Overlaps(parsed[ei]) {
				continue
			}
			reason := domain.ConflictReasonClient
			if row.ProviderID == providerID {
				reason = domain.ConflictReasonProvider
			}
			entryID, timesheetID := row.EntryID, row.TimesheetID
			conflicts = append(conflicts, domain.Conflict{
				CandidateIndex:      ci,
				Date:                candidate.Date.Format(domain.DateLayout),
				StartTime:           candidate.StartClock(),
				EndTime:             candidate.EndClock(),
				ExistingEntryID:     &entryID,
				ExistingTimesheetID: &timesheetID,
				ExistingStartTime:   parsed[ei].StartClock(),
				ExistingEndTime:     parsed[ei].EndClock(),
				Reason:              reason,
			})
		}

		for si := ci + 1; si < len(candidates); si++ {
			sibling := candidates[si]
			if !candidate.Overlaps(sibling) {
				continue
			}
			index := si
			conflicts = append(conflicts, domain.Conflict{
				CandidateIndex:    ci,
				Date:              candidate.Date.Format(domain.DateLayout),
				StartTime:         candidate.StartClock(),
				EndTime:           candidate.EndClock(),
				ExistingStartTime: sibling.StartClock(),
				ExistingEndTime:   sibling.EndClock(),
				SiblingIndex:      &index,
				Reason:            domain.ConflictReasonSibling,
			})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].CandidateIndex < conflicts[j].CandidateIndex
	})
	return conflicts
}

func distinctDates(intervals []domain.Interval) []time.Time {
	seen := make(map[time.Time]struct{}, len(intervals))
	dates := make([]time.Time, 0, len(intervals))
	for _, interval := range intervals {
		if _, ok := seen[interval.Date]; ok {
			continue
		}
		seen[interval.Date] = struct{}{}
		dates = append(dates, interval.Date)
	}
	return dates
}

func (s *Service) detectOverlaps(ctx context.Context, db *gorm.DB, providerID, clientID snowflake.ID, candidates []domain.Interval, exclude *snowflake.ID) ([]domain.Conflict, error) {
	existing, err := s.repo.ListStandardIntervals(ctx, db, domain.OverlapQuery{
		ProviderID:         providerID,
		ClientID:           clientID,
		Dates:              distinctDates(candidates),
		ExcludeTimesheetID: exclude,
	})
	if err != nil {
		return nil, err
	}
	return findConflicts(providerID, candidates, existing), nil
}
