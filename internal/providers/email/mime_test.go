package email

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMIMEWithAttachments(t *testing.T) {
	raw, err := BuildMIME(Message{
		From:    "billing@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Weekly documents",
		HTML:    "<p>hello</p>",
		Text:    "hello",
		Attachments: []Attachment{
			{FileName: "inv-2026-0001.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
			{FileName: "timesheet.xlsx", Content: []byte(strings.Repeat("x", 200))},
		},
	}, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com, b@example.com", parsed.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var contentTypes []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		contentTypes = append(contentTypes, part.Header.Get("Content-Type"))
	}
	require.Len(t, contentTypes, 3)
	assert.True(t, strings.HasPrefix(contentTypes[0], "multipart/alternative"))
	assert.Equal(t, `application/pdf; name="inv-2026-0001.pdf"`, contentTypes[1])
	assert.Equal(t, `application/octet-stream; name="timesheet.xlsx"`, contentTypes[2])
}

func TestBuildMIMERequiresAddresses(t *testing.T) {
	_, err := BuildMIME(Message{To: []string{"a@example.com"}}, time.Now())
	assert.ErrorIs(t, err, ErrNoSender)

	_, err = BuildMIME(Message{From: "billing@example.com"}, time.Now())
	assert.ErrorIs(t, err, ErrNoRecipients)
}

type fakeSES struct {
	input *ses.SendRawEmailInput
}

func (f *fakeSES) SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	f.input = params
	return &ses.SendRawEmailOutput{}, nil
}

func TestSESProviderSendsRawMessage(t *testing.T) {
	client := &fakeSES{}
	provider := NewSES(client, "billing@example.com")

	err := provider.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"})
	require.NoError(t, err)
	require.NotNil(t, client.input)
	assert.Equal(t, "billing@example.com", *client.input.Source)
	assert.Equal(t, []string{"a@example.com"}, client.input.Destinations)
	assert.Contains(t, string(client.input.RawMessage.Data), "multipart/mixed")
}

func TestNoOpProviderRecordsLastMessage(t *testing.T) {
	provider := &NoOpProvider{}
	require.NoError(t, provider.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "first"}))

	last, ok := provider.Last()
	require.True(t, ok)
	assert.Equal(t, "first", last.Subject)
	assert.Equal(t, 1, provider.Sent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, provider.Send(ctx, Message{To: []string{"a@example.com"}}), context.Canceled)
}
