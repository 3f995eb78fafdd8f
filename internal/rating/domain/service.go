package domain

// Service resolves payer rates and prices individual time entries.
type Service interface {
	Resolve(rates PayerRates, supervisory bool) (Rate, error)
	Calculate(in LineInput, rate Rate) Line
}
