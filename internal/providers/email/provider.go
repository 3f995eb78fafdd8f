package email

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNoRecipients = errors.New("email_no_recipients")
	ErrNoSender     = errors.New("email_no_sender")
)

type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Message is one outbound email. HTML and Text are sent as alternatives.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Provider makes a single delivery attempt; it never retries.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider accepts every message and keeps the last one for inspection.
type NoOpProvider struct {
	mu   sync.Mutex
	last *Message
	sent int
}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &msg
	p.sent++
	return nil
}

func (p *NoOpProvider) Last() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Message{}, false
	}
	return *p.last, true
}

func (p *NoOpProvider) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}
