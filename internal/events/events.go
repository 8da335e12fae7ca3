package events

import (
	"context"
	"time"
)

const (
	EventStatusChanged = "order_status_changed"
	SchemaVersion      = "1.0"
)

type StatusChanged struct {
	OrderID string    `json:"order_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}

// Publisher emits order events after the store write has succeeded. Errors
// are informational; the write is never rolled back.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
	Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishStatusChanged(context.Context, StatusChanged) error { return nil }

func (NoopPublisher) Close() {}
