package slack

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
	fx.Provide(NewAlerter),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.Slack.Token == "" {
		return &NoOpProvider{}
	}
	return NewSlack(slack.New(cfg.Slack.Token))
}

// Alerter posts operational alerts to the configured channel. Failures are logged only.
type Alerter struct {
	provider Provider
	channel  string
	log      *zap.Logger
}

func NewAlerter(provider Provider, cfg config.Config, log *zap.Logger) *Alerter {
	return &Alerter{
		provider: provider,
		channel:  cfg.Slack.AlertChannel,
		log:      log.Named("slack.alerter"),
	}
}

func (a *Alerter) Alert(ctx context.Context, message string) {
	if a == nil || a.channel == "" {
		return
	}
	if err := a.provider.PostMessage(context.WithoutCancel(ctx), a.channel, message); err != nil {
		a.log.Warn("failed to post alert", zap.Error(err))
	}
}
