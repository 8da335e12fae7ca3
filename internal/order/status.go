package order

import "fmt"

type Status string

const (
	StatusConfirmed      Status = "confirmed"
	StatusSubmitted      Status = "submitted"
	StatusProcessing     Status = "processing"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// rank orders the forward path. Cancelled sits outside it.
var rank = map[Status]int{
	StatusConfirmed:      0,
	StatusSubmitted:      1,
	StatusProcessing:     2,
	StatusInTransit:      3,
	StatusOutForDelivery: 4,
	StatusDelivered:      5,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == StatusCancelled {
		return st, nil
	}
	if _, ok := rank[st]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Reached reports whether s is target or lies beyond it on the forward path.
func (s Status) Reached(target Status) bool {
	r, ok := rank[s]
	t, tok := rank[target]
	return ok && tok && r >= t
}

// CanTransition is the only legality check for status writes. Rewriting the
// current status is always allowed so retries stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return from == StatusConfirmed || from == StatusSubmitted || from == StatusProcessing
	}

	fr, ok := rank[from]
	if !ok {
		return false
	}
	tr, ok := rank[to]
	if !ok {
		return false
	}
	return tr > fr
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
