package email

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
)

var ErrNoRecipient = errors.New("email: no recipient")

type Message struct {
	To       string
	Subject  string
	HTML     string
	Text     string
	Template string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	return nil
}

// Sender transmits one rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ConsoleSender writes emails to the log instead of sending them.
type ConsoleSender struct {
	from string
}

func NewConsoleSender(from string) *ConsoleSender {
	return &ConsoleSender{from: from}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	logger.Info("email (console driver)",
		"from", s.from,
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.Template,
		"text", msg.Text,
	)
	return nil
}

// Instrumented counts sends per template and outcome.
type Instrumented struct {
	next Sender
}

func NewInstrumented(next Sender) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) Send(ctx context.Context, msg Message) error {
	err := s.next.Send(ctx, msg)
	result := "sent"
	if err != nil {
		result = "failed"
	}
	prom.IncEmail(msg.Template, result)
	return err
}
