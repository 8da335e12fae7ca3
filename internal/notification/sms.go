package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cediman-be/internal/logger"
	"cediman-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type frogWigalSender struct {
	baseURL    string
	apiKey     string
	username   string
	senderID   string
	httpClient *http.Client
}

type frogDestination struct {
	Destination string `json:"destination"`
	MsgID       string `json:"msgid"`
}

type frogRequest struct {
	SenderID     string            `json:"senderid"`
	Destinations []frogDestination `json:"destinations"`
	Message      string            `json:"message"`
	SMSType      string            `json:"smstype"`
}

type frogResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewFrogWigalSender sends SMS through the Wigal Frog API. Without an API key
// it returns a NoopSender.
func NewFrogWigalSender(baseURL, apiKey, username, senderID string) Sender {
	if apiKey == "" {
		logger.L().Warn("FrogWigal API key is empty, SMS notifications disabled")
		return NoopSender{}
	}
	return &frogWigalSender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		username: username,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (f *frogWigalSender) Send(ctx context.Context, msg Message) error {
	phone := utils.NormalizePhoneGH(msg.To)
	if phone == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(frogRequest{
		SenderID: f.senderID,
		Destinations: []frogDestination{{
			Destination: phone,
			MsgID:       uuid.NewString(),
		}},
		Message: msg.Text,
		SMSType: "text",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/v3/sms/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-KEY", f.apiKey)
	req.Header.Set("USERNAME", f.username)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("frogwigal request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read frogwigal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("frogwigal error: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out frogResponse
	if err := json.Unmarshal(respBody, &out); err == nil && strings.EqualFold(out.Status, "error") {
		return fmt.Errorf("frogwigal error: %s", out.Message)
	}

	logger.FromCtx(ctx).Debug("sms sent", zap.String("order_id", msg.OrderID))
	return nil
}
