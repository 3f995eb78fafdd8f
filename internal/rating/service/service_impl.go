package service

import (
	"github.com/smallbiznis/carebill/internal/config"
	ratingdomain "github.com/smallbiznis/carebill/internal/rating/domain"
	"go.uber.org/fx"
)

type ServiceParam struct {
	fx.In

	Rules *config.BillingRulesHolder
}

type Service struct {
	rules *config.BillingRulesHolder
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{rules: p.Rules}
}

func (s *Service) Resolve(rates ratingdomain.PayerRates, supervisory bool) (ratingdomain.Rate, error) {
	return ResolveRate(rates, supervisory, s.rules.Get().DefaultMinutesPerUnit)
}

func (s *Service) Calculate(in ratingdomain.LineInput, rate ratingdomain.Rate) ratingdomain.Line {
	return Calculate(in, rate, s.rules.Get())
}
