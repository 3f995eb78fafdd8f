package service

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/config"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
)

const (
	unitScale   = 4
	amountScale = 2
)

var (
	minutesPerHour = decimal.NewFromInt(60)
	unitsPerHour   = decimal.NewFromInt(4)
)

// Units converts worked minutes into billing units without integer rounding.
func Units(minutes int, rate ratingdomain.Rate, mode string) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	worked := decimal.NewFromInt(int64(minutes))
	if mode == config.UnitModePayerDivisor && rate.MinutesPerUnit > 0 {
		return worked.Div(decimal.NewFromInt(int64(rate.MinutesPerUnit)))
	}
	return worked.Mul(unitsPerHour).Div(minutesPerHour)
}

// Calculate prices one entry. On a standard timesheet, entries carrying a
// supervisory tag keep their units but are charged zero; supervisory-program
// timesheets charge every entry at the program rate.
func Calculate(in ratingdomain.LineInput, rate ratingdomain.Rate, rules config.BillingRules) ratingdomain.Line {
	units := Units(in.Minutes, rate, rules.UnitMode)
	line := ratingdomain.Line{
		Units: units.Round(unitScale),
		Rate:  rate.PerUnit,
	}

	if !in.SupervisoryTimesheet && rules.IsSupervisoryTag(in.ServiceTag) {
		line.Suppressed = true
		line.Amount = decimal.Zero
		return line
	}

	line.Amount = units.Mul(rate.PerUnit).Round(amountScale)
	return line
}
