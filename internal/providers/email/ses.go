package email

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// RawEmailSender is the part of the SES client this provider uses.
type RawEmailSender interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

type SESProvider struct {
	client RawEmailSender
	from   string
	now    func() time.Time
}

func NewSES(client RawEmailSender, from string) *SESProvider {
	return &SESProvider{client: client, from: from, now: time.Now}
}

func (p *SESProvider) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = p.from
	}
	raw, err := BuildMIME(msg, p.now())
	if err != nil {
		return err
	}

	_, err = p.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: msg.To,
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return fmt.Errorf("ses send raw email: %w", err)
	}
	return nil
}
