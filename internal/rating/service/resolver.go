package service

import (
	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
)

// ResolveRate picks the program rate, falling back to the payer's legacy rate.
// The minutes divisor follows the same fallback and finally defaultMinutes.
func ResolveRate(rates ratingdomain.PayerRates, supervisory bool, defaultMinutes int) (ratingdomain.Rate, error) {
	program := ratingdomain.ProgramFor(supervisory)

	rate, minutes := rates.StandardRate, rates.StandardMinutes
	if supervisory {
		rate, minutes = rates.SupervisoryRate, rates.SupervisoryMinutes
	}
	if !rate.Valid {
		rate = rates.LegacyRate
	}
	if minutes == nil || *minutes <= 0 {
		minutes = rates.LegacyMinutes
	}

	if !rate.Valid || !rate.Decimal.GreaterThan(decimal.Zero) {
		return ratingdomain.Rate{}, &ratingdomain.MissingRateError{PayerID: rates.PayerID, Program: program}
	}

	divisor := defaultMinutes
	if minutes != nil && *minutes > 0 {
		divisor = *minutes
	}
	if divisor <= 0 {
		divisor = ratingdomain.DefaultMinutesPerUnit
	}

	return ratingdomain.Rate{
		Program:        program,
		PerUnit:        rate.Decimal,
		MinutesPerUnit: divisor,
	}, nil
}
