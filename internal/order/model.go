package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID               string
	Status           Status
	UserID           *string
	GuestEmail       string
	Items            []Item
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	Total            decimal.Decimal
	PaymentReference string
	Shipping         Shipping
	OrderDate        time.Time
	UpdatedAt        time.Time
}

type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping is the address and contact snapshot taken at checkout.
type Shipping struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// ContactEmail prefers the guest email and falls back to the shipping email.
func (o *Order) ContactEmail() string {
	if o.GuestEmail != "" {
		return o.GuestEmail
	}
	return o.Shipping.Email
}

func (o *Order) IsGuest() bool {
	return o.UserID == nil || *o.UserID == ""
}

// Actionable reports whether the order carries an identity to act on.
func (o *Order) Actionable() bool {
	return !o.IsGuest() || o.ContactEmail() != ""
}

func (o *Order) OwnedBy(userID string) bool {
	return !o.IsGuest() && *o.UserID == userID
}

func (o *Order) MatchesEmail(email string) bool {
	contact := o.ContactEmail()
	return contact != "" && strings.EqualFold(strings.TrimSpace(email), contact)
}

// AmountMinorUnits is the order total in the gateway's minor unit.
func (o *Order) AmountMinorUnits() int64 {
	return o.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type CreateOrderInput struct {
	UserID           *string
	GuestEmail       string
	Items            []Item
	ShippingCost     decimal.Decimal
	PaymentReference string
	Shipping         Shipping
}

type Contact struct {
	Email string
	Phone string
	Name  string
}

type UpdateStatusInput struct {
	OrderID  string
	Status   string
	Contact  Contact
	Tracking *string
	Note     *string
}
