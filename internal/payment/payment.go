package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderPaystack = "PAYSTACK"
	StatusSuccess    = "success"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayTimeout     = errors.New("payment gateway timed out")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

type Gateway interface {
	Initialize(ctx context.Context, email string, amount decimal.Decimal, metadata map[string]any) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
	VerifySignature(body []byte, signature string) error
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type Customer struct {
	Email        string
	CustomerCode string
}

// Verification is the gateway's view of one transaction. A non-success
// Status is a business outcome, not an error.
type Verification struct {
	Reference        string
	AmountMinorUnits int64
	Status           string
	PaidAt           *time.Time
	Channel          string
	Currency         string
	Customer         Customer
	Metadata         map[string]any
}

func (v *Verification) Successful() bool {
	return v != nil && v.Status == StatusSuccess
}

// ToMinorUnits converts a major-unit amount to the gateway's integer unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
