package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cediman-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPaystackBaseURL = "https://api.paystack.co"
	defaultPaystackTimeout = 30 * time.Second
)

type paystackGateway struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Status    string          `json:"status"`
	PaidAt    *time.Time      `json:"paid_at"`
	Channel   string          `json:"channel"`
	Currency  string          `json:"currency"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  struct {
		Email        string `json:"email"`
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
}

// ----------------- Constructor -----------------

func NewPaystackGateway(secretKey, baseURL string, timeout time.Duration) Gateway {
	if secretKey == "" {
		logger.L().Warn("Paystack secret key is empty")
	}
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}
	if timeout <= 0 {
		timeout = defaultPaystackTimeout
	}

	return &paystackGateway{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ----------------- Initialize -----------------

func (p *paystackGateway) Initialize(
	ctx context.Context,
	email string,
	amount decimal.Decimal,
	metadata map[string]any,
) (*InitializeResult, error) {
	minor := ToMinorUnits(amount)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Initialize"),
		zap.Int64("amount_minor", minor),
	)

	body := map[string]any{
		"email":  email,
		"amount": minor,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}

	env, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		log.Error("Paystack initialize failed", zap.Error(err))
		return nil, err
	}

	var data paystackInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Error("Failed decoding Paystack initialize data", zap.Error(err))
		return nil, fmt.Errorf("%w: decode initialize data: %w", ErrGatewayRejected, err)
	}

	log.Info("Paystack transaction initialized", zap.String("reference", data.Reference))

	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// ----------------- Verify -----------------

func (p *paystackGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Verify"),
		zap.String("reference", reference),
	)

	env, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		log.Error("Paystack verify failed", zap.Error(err))
		return nil, err
	}

	var data paystackVerifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.Error("Failed decoding Paystack verify data", zap.Error(err))
		return nil, fmt.Errorf("%w: decode verify data: %w", ErrGatewayRejected, err)
	}

	log.Info("Paystack transaction verified", zap.String("status", data.Status))

	return &Verification{
		Reference:        data.Reference,
		AmountMinorUnits: data.Amount,
		Status:           data.Status,
		PaidAt:           data.PaidAt,
		Channel:          data.Channel,
		Currency:         data.Currency,
		Customer: Customer{
			Email:        data.Customer.Email,
			CustomerCode: data.Customer.CustomerCode,
		},
		Metadata: decodeMetadata(data.Metadata),
	}, nil
}

// ----------------- Verify Signature -----------------

func (p *paystackGateway) VerifySignature(body []byte, signature string) error {
	if p.secretKey == "" {
		return nil // skip in dev
	}

	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *paystackGateway) do(ctx context.Context, method, path string, payload any) (*paystackEnvelope, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w: %w", ErrGatewayUnavailable, ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read paystack response: %w", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: paystack status %d: %s", ErrGatewayUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var env paystackEnvelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid paystack response: %w", ErrGatewayRejected, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices || !env.Status {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, env.Message)
	}

	return &env, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Paystack sends metadata as an object, a JSON string, or "".
func decodeMetadata(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}
