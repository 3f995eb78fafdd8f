// Package domain holds the rate and unit types shared by invoice generation and recalculation.
package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const DefaultMinutesPerUnit = 15

type Program string

const (
	ProgramStandard    Program = "standard"
	ProgramSupervisory Program = "supervisory"
)

// ProgramFor maps the timesheet flag to its billing track.
func ProgramFor(supervisory bool) Program {
	if supervisory {
		return ProgramSupervisory
	}
	return ProgramStandard
}

// PayerRates is the rate configuration of one payer. Nil fields are unset.
type PayerRates struct {
	PayerID snowflake.ID

	LegacyRate    decimal.NullDecimal
	LegacyMinutes *int

	StandardRate    decimal.NullDecimal
	StandardMinutes *int

	SupervisoryRate    decimal.NullDecimal
	SupervisoryMinutes *int
}

// Rate is the resolved per-unit price for one program.
type Rate struct {
	Program        Program
	PerUnit        decimal.Decimal
	MinutesPerUnit int
}

// LineInput is one time entry as seen by the calculator.
type LineInput struct {
	Minutes              int
	ServiceTag           string
	SupervisoryTimesheet bool
}

// Line is the billed outcome of one time entry. Units always reflect worked time;
// Amount is zero when Suppressed.
type Line struct {
	Units      decimal.Decimal
	Rate       decimal.Decimal
	Amount     decimal.Decimal
	Suppressed bool
}

// Totals accumulates lines for an invoice header.
type Totals struct {
	Amount decimal.Decimal
	Units  decimal.Decimal
	Lines  int
}

func (t *Totals) Add(line Line) {
	t.Amount = t.Amount.Add(line.Amount)
	t.Units = t.Units.Add(line.Units)
	t.Lines++
}
