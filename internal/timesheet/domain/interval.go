package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	durationToleranceMinutes = 1
)

// EntryInput is a raw entry as submitted by a client.
type EntryInput struct {
	Date            string `json:"date" binding:"required"`
	StartTime       string `json:"start_time" binding:"required"`
	EndTime         string `json:"end_time" binding:"required"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	ServiceTag      string `json:"service_tag"`
}

// Interval is a parsed entry: a date plus minutes since midnight.
type Interval struct {
	Date       time.Time
	StartMin   int
	EndMin     int
	ServiceTag string
}

func (i Interval) Minutes() int { return i.EndMin - i.StartMin }

// Overlaps uses half-open ranges: an entry ending at 10:00 does not collide with one starting at 10:00.
func (i Interval) Overlaps(other Interval) bool {
	if !i.Date.Equal(other.Date) {
		return false
	}
	return i.StartMin < other.EndMin && other.StartMin < i.EndMin
}

func (i Interval) StartClock() string { return formatClock(i.StartMin) }
func (i Interval) EndClock() string   { return formatClock(i.EndMin) }

// IntervalOf converts a stored entry back into an Interval.
func IntervalOf(entry TimeEntry) (Interval, error) {
	start, err := parseClock(entry.StartTime)
	if err != nil {
		return Interval{}, err
	}
	end, err := parseClock(entry.EndTime)
	if err != nil {
		return Interval{}, err
	}
	return Interval{
		Date:       DateOnly(entry.EntryDate),
		StartMin:   start,
		EndMin:     end,
		ServiceTag: entry.ServiceTag,
	}, nil
}

// ParseEntries validates raw entries and returns them as intervals.
func ParseEntries(inputs []EntryInput) ([]Interval, error) {
	verr := &ValidationError{}
	if len(inputs) == 0 {
		verr.add("entries", "required", "at least one entry is required")
		return nil, verr
	}

	out := make([]Interval, 0, len(inputs))
	for idx, in := range inputs {
		field := "entries[" + strconv.Itoa(idx) + "]"

		date, err := ParseDate(in.Date)
		if err != nil {
			verr.add(field+".date", "invalid_format", "date must be YYYY-MM-DD")
		}
		start, startErr := parseClock(in.StartTime)
		if startErr != nil {
			verr.add(field+".start_time", "invalid_format", "start_time must be HH:MM")
		}
		end, endErr := parseClock(in.EndTime)
		if endErr != nil {
			verr.add(field+".end_time", "invalid_format", "end_time must be HH:MM")
		}
		if err != nil || startErr != nil || endErr != nil {
			continue
		}

		if end <= start {
			verr.add(field+".end_time", "invalid_range", "end_time must be after start_time")
			continue
		}
		worked := end - start
		if in.DurationMinutes != nil {
			diff := *in.DurationMinutes - worked
			if diff < -durationToleranceMinutes || diff > durationToleranceMinutes {
				verr.add(field+".duration_minutes", "mismatch",
					fmt.Sprintf("duration_minutes must equal end_time - start_time (%d)", worked))
				continue
			}
		}

		out = append(out, Interval{
			Date:       date,
			StartMin:   start,
			EndMin:     end,
			ServiceTag: in.ServiceTag,
		})
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseDate parses YYYY-MM-DD as a UTC calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseClock(value string) (int, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Conflict is one candidate entry that intersects an existing or sibling entry.
type Conflict struct {
	CandidateIndex      int           `json:"candidate_index"`
	Date                string        `json:"date"`
	StartTime           string        `json:"start_time"`
	EndTime             string        `json:"end_time"`
	ExistingEntryID     *snowflake.ID `json:"existing_entry_id,omitempty"`
	ExistingTimesheetID *snowflake.ID `json:"existing_timesheet_id,omitempty"`
	ExistingStartTime   string        `json:"existing_start_time"`
	ExistingEndTime     string        `json:"existing_end_time"`
	SiblingIndex        *int          `json:"sibling_index,omitempty"`
	Reason              string        `json:"reason"`
}

const (
	ConflictReasonProvider = "same_provider"
	ConflictReasonClient   = "same_client"
	ConflictReasonSibling  = "same_submission"
)
