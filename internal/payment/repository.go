package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// WebhookEvent is one inbound gateway notification as stored in the inbox.
type WebhookEvent struct {
	Provider         string
	EventID          string
	EventType        string
	Reference        string
	AmountMinorUnits int64
	Payload          json.RawMessage
	SignatureValid   bool
}

// WebhookRecord is an inbox row with its processing state.
type WebhookRecord struct {
	ID               int64      `json:"id"`
	EventType        string     `json:"eventType"`
	Reference        string     `json:"reference"`
	AmountMinorUnits int64      `json:"amount"`
	Attempts         int        `json:"attempts"`
	ProcessError     string     `json:"processError,omitempty"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	ReceivedAt       time.Time  `json:"receivedAt"`
}

type Repository interface {
	SavePaymentWebhook(ctx context.Context, ev WebhookEvent) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
	WebhooksByReference(ctx context.Context, reference string) ([]WebhookRecord, error)
	PendingWebhooks(ctx context.Context, eventType string, maxAttempts, limit int) ([]WebhookRecord, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// SavePaymentWebhook inserts ev unless the provider already delivered the
// same event id, in which case isDuplicate is true and nothing is written.
func (r *repository) SavePaymentWebhook(ctx context.Context, ev WebhookEvent) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payment_webhooks (
			provider, event_id, event_type, reference, amount_minor, signature_valid, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id
	`,
		ev.Provider,
		ev.EventID,
		ev.EventType,
		ev.Reference,
		ev.AmountMinorUnits,
		ev.SignatureValid,
		[]byte(ev.Payload),
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET processed_at = NOW(), process_error = NULL, attempts = attempts + 1
		WHERE id = $1
	`, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET process_error = $2, attempts = attempts + 1
		WHERE id = $1
	`, webhookID, reason)
	return err
}

const selectWebhook = `
	SELECT id, event_type, reference, amount_minor, attempts,
	       COALESCE(process_error, ''), processed_at, received_at
	FROM payment_webhooks
`

func (r *repository) WebhooksByReference(ctx context.Context, reference string) ([]WebhookRecord, error) {
	return r.queryWebhooks(ctx,
		selectWebhook+` WHERE reference = $1 ORDER BY received_at`,
		reference,
	)
}

// PendingWebhooks returns unprocessed events of eventType that have failed
// fewer than maxAttempts times, oldest first.
func (r *repository) PendingWebhooks(ctx context.Context, eventType string, maxAttempts, limit int) ([]WebhookRecord, error) {
	return r.queryWebhooks(ctx,
		selectWebhook+`
		WHERE processed_at IS NULL AND event_type = $1 AND attempts < $2
		ORDER BY received_at
		LIMIT $3`,
		eventType, maxAttempts, limit,
	)
}

func (r *repository) queryWebhooks(ctx context.Context, query string, args ...any) ([]WebhookRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []WebhookRecord{}
	for rows.Next() {
		var (
			rec         WebhookRecord
			processedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EventType,
			&rec.Reference,
			&rec.AmountMinorUnits,
			&rec.Attempts,
			&rec.ProcessError,
			&processedAt,
			&rec.ReceivedAt,
		); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
