package email

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To       string
	From     string
	FromName string
	Subject  string
	HTML     string
	Text     string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// LogProvider only logs the envelope. It is the default when no provider is
// configured.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log}
}

func (p *LogProvider) Send(ctx context.Context, msg Message) error {
	p.log.Info("email not delivered, no provider configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// OutboxProvider records messages instead of delivering them. Tests use it to
// inspect what would have been sent.
type OutboxProvider struct {
	mu       sync.Mutex
	messages []Message
}

func (p *OutboxProvider) Send(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *OutboxProvider) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
