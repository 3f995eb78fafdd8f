package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

// Poster is the slack client method used for alerts.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackProvider struct {
	client Poster
}

func NewSlack(client Poster) *SlackProvider {
	return &SlackProvider{client: client}
}

func (p *SlackProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	if channelID == "" {
		return nil
	}
	_, _, err := p.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}
