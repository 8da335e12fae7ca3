package notification

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindEmail Kind = "email"
	KindSMS   Kind = "sms"
)

type Message struct {
	Kind    Kind
	To      string
	Subject string
	HTML    string
	Text    string
	OrderID string
}

var (
	ErrQueueFull       = errors.New("notification queue full")
	ErrOutboxClosed    = errors.New("notification outbox closed")
	ErrNoRecipient     = errors.New("notification has no recipient")
	ErrUnsupportedKind = errors.New("unsupported notification kind")
)

// Dispatcher accepts a message for delivery. Implementations must not block on
// the actual send.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Discard drops every message.
type Discard struct{}

func (Discard) Dispatch(context.Context, Message) error { return nil }

// NoopSender stands in for a channel whose credentials are not configured.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return nil }

// Router hands each message to the sender for its kind.
type Router struct {
	Email Sender
	SMS   Sender
}

func (r Router) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	var s Sender
	switch msg.Kind {
	case KindEmail:
		s = r.Email
	case KindSMS:
		s = r.SMS
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, msg.Kind)
	}

	if s == nil {
		return nil
	}
	return s.Send(ctx, msg)
}
