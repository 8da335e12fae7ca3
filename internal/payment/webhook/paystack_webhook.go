package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cediman-be/internal/logger"
	"cediman-be/internal/payment"
	"cediman-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventChargeSuccess = "charge.success"
	SignatureHeader    = "x-paystack-signature"

	maxBodyBytes = 1 << 20

	// Inbox rows that failed this many times are left for an operator.
	maxReplayAttempts = 5
	replayBatchSize   = 50
)

// Payload is the subset of a Paystack event this service reads.
type Payload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// eventID identifies a delivery for deduplication. Paystack sends no event id
// of its own, so the transaction id (or reference) stands in for one.
func (p Payload) eventID() string {
	switch {
	case p.Data.ID != 0:
		return fmt.Sprintf("%s:%d", p.Event, p.Data.ID)
	case p.Data.Reference != "":
		return p.Event + ":" + p.Data.Reference
	}
	return uuid.NewString()
}

// OrderConfirmer is the part of the order service a charge event drives.
type OrderConfirmer interface {
	CheckReference(ctx context.Context, reference string) (string, bool, error)
	VerifyAndConfirmPayment(ctx context.Context, orderID string) error
}

type Handler struct {
	Orders  OrderConfirmer
	Gateway payment.Gateway
	Repo    payment.Repository
}

func NewWebhookHandler(orders OrderConfirmer, gateway payment.Gateway, repo payment.Repository) *Handler {
	return &Handler{
		Orders:  orders,
		Gateway: gateway,
		Repo:    repo,
	}
}

// PaymentWebhookHandler records every signed event once and answers 200 after
// that, so Paystack stops redelivering. Processing failures are kept on the
// inbox row.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("layer", "webhook"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.Gateway.VerifySignature(body, r.Header.Get(SignatureHeader)); err != nil {
		log.Warn("rejected webhook with invalid signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("event", payload.Event),
		zap.String("reference", payload.Data.Reference),
	)

	webhookID, dup, err := h.Repo.SavePaymentWebhook(ctx, payment.WebhookEvent{
		Provider:       payment.ProviderPaystack,
		EventID:        payload.eventID(),
		EventType:      payload.Event,
		Reference:        payload.Data.Reference,
		AmountMinorUnits: payload.Data.Amount,
		Payload:          body,
		SignatureValid:   true,
	})
	if err != nil {
		log.Error("failed to record webhook", zap.Error(err))
		http.Error(w, "failed to record webhook", http.StatusInternalServerError)
		return
	}
	if dup {
		log.Info("duplicate webhook ignored")
		writeOK(w)
		return
	}

	if err := h.process(ctx, payload.Event, payload.Data.Reference); err != nil {
		log.Warn("webhook processing failed", zap.Error(err))
		if markErr := h.Repo.MarkWebhookFailed(ctx, webhookID, err.Error()); markErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(markErr))
		}
		writeOK(w)
		return
	}

	if err := h.Repo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}
	writeOK(w)
}

func (h *Handler) process(ctx context.Context, event, reference string) error {
	if event != EventChargeSuccess {
		return nil
	}
	if reference == "" {
		return errors.New("charge event without reference")
	}

	orderID, exists, err := h.Orders.CheckReference(ctx, reference)
	if err != nil {
		return fmt.Errorf("lookup reference: %w", err)
	}
	if !exists {
		return fmt.Errorf("no order for reference %s", reference)
	}

	return h.Orders.VerifyAndConfirmPayment(ctx, orderID)
}

// ReplayPending reprocesses charge events whose first processing failed, for
// example because the order was created after the webhook arrived. It returns
// how many events were confirmed.
func (h *Handler) ReplayPending(ctx context.Context) (int, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "ReplayPending"),
	)

	pending, err := h.Repo.PendingWebhooks(ctx, EventChargeSuccess, maxReplayAttempts, replayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending webhooks: %w", err)
	}

	confirmed := 0
	for _, rec := range pending {
		if err := h.process(ctx, rec.EventType, rec.Reference); err != nil {
			log.Warn("webhook replay failed",
				zap.Int64("webhook_id", rec.ID),
				zap.String("reference", rec.Reference),
				zap.Int("attempts", rec.Attempts+1),
				zap.Error(err),
			)
			if markErr := h.Repo.MarkWebhookFailed(ctx, rec.ID, err.Error()); markErr != nil {
				log.Error("failed to mark webhook failed", zap.Error(markErr))
			}
			continue
		}
		if err := h.Repo.MarkWebhookProcessed(ctx, rec.ID); err != nil {
			log.Error("failed to mark webhook processed", zap.Error(err))
			continue
		}
		confirmed++
	}

	if len(pending) > 0 {
		log.Info("webhook replay finished",
			zap.Int("pending", len(pending)),
			zap.Int("confirmed", confirmed),
		)
	}
	return confirmed, nil
}

// StartReplay runs ReplayPending every interval until ctx ends.
func (h *Handler) StartReplay(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := h.ReplayPending(ctx); err != nil {
					logger.FromCtx(ctx).Error("webhook replay error", zap.Error(err))
				}
			}
		}
	}()
}

// WebhookHistory lists every inbox row recorded for a payment reference.
func (h *Handler) WebhookHistory(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")
	if reference == "" {
		utils.WriteJSONError(w, "reference is required", http.StatusBadRequest)
		return
	}

	recs, err := h.Repo.WebhooksByReference(r.Context(), reference)
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed to load webhook history",
			zap.String("reference", reference),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"webhooks": recs,
	})
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
