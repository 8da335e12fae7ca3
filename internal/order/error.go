package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrMissingReference     = errors.New("payment reference missing")
	ErrBadRequest           = errors.New("bad request")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrStatusConflict       = errors.New("order status changed concurrently")
	ErrDuplicateReference   = errors.New("payment reference already used")
	ErrDuplicateOrderID     = errors.New("order id already exists")
	ErrReferenceLocked      = errors.New("payment reference can no longer be changed")
	ErrPaymentNotSuccessful = errors.New("payment not successful")
	ErrStoreWrite           = errors.New("failed to write order")
)

// PaymentNotSuccessfulError carries the gateway's raw status string.
type PaymentNotSuccessfulError struct {
	Status string
}

func (e *PaymentNotSuccessfulError) Error() string {
	return fmt.Sprintf("payment not successful: gateway status %q", e.Status)
}

func (e *PaymentNotSuccessfulError) Is(target error) bool {
	return target == ErrPaymentNotSuccessful
}

// UnderpaidError reports a successful gateway charge smaller than the order
// total. It counts as an unsuccessful payment.
type UnderpaidError struct {
	PaidMinorUnits     int64
	ExpectedMinorUnits int64
}

func (e *UnderpaidError) Error() string {
	return fmt.Sprintf("payment not successful: paid %d of %d minor units", e.PaidMinorUnits, e.ExpectedMinorUnits)
}

func (e *UnderpaidError) Is(target error) bool {
	return target == ErrPaymentNotSuccessful
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}
