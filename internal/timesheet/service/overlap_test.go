package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/timesheet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(value)
	require.NoError(t, err)
	return d
}

func TestFindConflicts(t *testing.T) {
	provider := snowflake.ID(10)
	otherProvider := snowflake.ID(11)
	monday := day(t, "2026-01-05")

	existing := []domain.ExistingInterval{
		{EntryID: 1, TimesheetID: 100, ProviderID: provider, ClientID: 50, EntryDate: monday, StartTime: "09:00", EndTime: "10:00"},
		{EntryID: 2, TimesheetID: 101, ProviderID: otherProvider, ClientID: 51, EntryDate: monday, StartTime: "13:00", EndTime: "14:00"},
	}

	tests := []struct {
		name      string
		candidate domain.Interval
		want      []string
	}{
		{"touching end boundary", domain.Interval{Date: monday, StartMin: 600, EndMin: 660}, nil},
		{"touching start boundary", domain.Interval{Date: monday, StartMin: 480, EndMin: 540}, nil},
		{"inside provider block", domain.Interval{Date: monday, StartMin: 570, EndMin: 630}, []string{domain.ConflictReasonProvider}},
		{"inside client block", domain.Interval{Date: monday, StartMin: 795, EndMin: 810}, []string{domain.ConflictReasonClient}},
		{"different day", domain.Interval{Date: monday.AddDate(0, 0, 1), StartMin: 540, EndMin: 600}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := findConflicts(provider, []domain.Interval{tt.candidate}, existing)
			var reasons []string
			for _, c := range conflicts {
				reasons = append(reasons, c.Reason)
			}
			assert.Equal(t, tt.want, reasons)
		})
	}
}

func TestFindConflictsBetweenSiblings(t *testing.T) {
	monday := day(t, "2026-01-05")
	candidates := []domain.Interval{
		{Date: monday, StartMin: 540, EndMin: 600},
		{Date: monday, StartMin: 600, EndMin: 660},
		{Date: monday, StartMin: 630, EndMin: 690},
	}

	conflicts := findConflicts(10, candidates, nil)
	require.Len(t, conflicts, 1)
	assert.Equal(t, 1, conflicts[0].CandidateIndex)
	require.NotNil(t, conflicts[0].SiblingIndex)
	assert.Equal(t, 2, *conflicts[0].SiblingIndex)
	assert.Equal(t, domain.ConflictReasonSibling, conflicts[0].Reason)
	assert.Nil(t, conflicts[0].ExistingEntryID)
}

func TestResolveRange(t *testing.T) {
	intervals := []domain.Interval{
		{Date: day(t, "2026-01-07"), StartMin: 540, EndMin: 600},
		{Date: day(t, "2026-01-05"), StartMin: 540, EndMin: 600},
	}

	start, end, err := resolveRange(nil, nil, intervals)
	require.NoError(t, err)
	assert.Equal(t, day(t, "2026-01-05"), start)
	assert.Equal(t, day(t, "2026-01-07"), end)

	narrow := "2026-01-06"
	_, _, err = resolveRange(&narrow, nil, intervals)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad := "01/05/2026"
	_, _, err = resolveRange(&bad, nil, intervals)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
