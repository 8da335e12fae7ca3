package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ItemResponse struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unitPrice"`
	LineTotal json.Number `json:"lineTotal"`
}

type ShippingResponse struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// OrderResponse is the JSON shape of an order. Money is a number with two
// decimals and dates are RFC 3339 strings.
type OrderResponse struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	UserID           *string          `json:"userId"`
	GuestEmail       string           `json:"guestEmail,omitempty"`
	Items            []ItemResponse   `json:"items"`
	Subtotal         json.Number      `json:"subtotal"`
	ShippingCost     json.Number      `json:"shippingCost"`
	Total            json.Number      `json:"total"`
	PaymentReference string           `json:"paymentReference,omitempty"`
	Shipping         ShippingResponse `json:"shipping"`
	OrderDate        string           `json:"orderDate"`
	UpdatedAt        string           `json:"updatedAt"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func ToResponse(o *Order) *OrderResponse {
	if o == nil {
		return nil
	}

	items := make([]ItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			LineTotal: money(it.LineTotal()),
		})
	}

	return &OrderResponse{
		ID:               o.ID,
		Status:           string(o.Status),
		UserID:           o.UserID,
		GuestEmail:       o.GuestEmail,
		Items:            items,
		Subtotal:         money(o.Subtotal),
		ShippingCost:     money(o.ShippingCost),
		Total:            money(o.Total),
		PaymentReference: o.PaymentReference,
		Shipping:         ShippingResponse(o.Shipping),
		OrderDate:        isoTime(o.OrderDate),
		UpdatedAt:        isoTime(o.UpdatedAt),
	}
}

func ToResponses(orders []*Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, ToResponse(o))
	}
	return out
}
