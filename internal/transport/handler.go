package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cediman-be/internal/logger"
	"cediman-be/internal/order"
	"cediman-be/internal/payment"
	"cediman-be/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Orders order.Service
	// Admin wraps the operator-only routes. Nil leaves them open.
	Admin func(http.Handler) http.Handler
	// TokenIdentity ignores client-supplied user ids; only a verified token
	// identifies the caller.
	TokenIdentity bool
}

func NewHandler(orders order.Service, admin func(http.Handler) http.Handler) *Handler {
	return &Handler{Orders: orders, Admin: admin}
}

func (h *Handler) requesterID(r *http.Request, claimed string) string {
	if uid, ok := utils.GetUserIDFromContext(r.Context()); ok {
		return uid
	}
	if h.TokenIdentity {
		return ""
	}
	return claimed
}

// Register mounts the order and payment routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	admin := h.Admin
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/user", h.ListUserOrders)
	mux.HandleFunc("GET /orders/{orderId}", h.GetOrder)
	mux.Handle("DELETE /orders/{orderId}", admin(http.HandlerFunc(h.DeleteOrder)))
	mux.HandleFunc("POST /orders/verify-payment", h.VerifyPaymentAndConfirm)
	mux.Handle("POST /orders/update-status", admin(http.HandlerFunc(h.UpdateStatus)))
	mux.HandleFunc("POST /orders/confirm-delivery", h.ConfirmDelivery)
	mux.HandleFunc("POST /orders/check-reference", h.CheckReference)
	mux.HandleFunc("POST /orders/attach-reference", h.AttachReference)
	mux.Handle("POST /admin/orders/backfill-user", admin(http.HandlerFunc(h.BackfillUser)))

	mux.HandleFunc("POST /paystack/initialize", h.InitializePayment)
	mux.HandleFunc("POST /paystack/verify", h.VerifyPayment)
}

var errInvalidBody = fmt.Errorf("%w: invalid request body", order.ErrBadRequest)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

type itemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	UserID           *string         `json:"userId"`
	GuestEmail       string          `json:"guestEmail"`
	Items            []itemRequest   `json:"items"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	PaymentReference string          `json:"paymentReference"`
	Shipping         order.Shipping  `json:"shipping"`
}

func (req createOrderRequest) toInput() order.CreateOrderInput {
	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return order.CreateOrderInput{
		UserID:           req.UserID,
		GuestEmail:       req.GuestEmail,
		Items:            items,
		ShippingCost:     req.ShippingCost,
		PaymentReference: req.PaymentReference,
		Shipping:         req.Shipping,
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// An authenticated caller owns the order regardless of the body.
	if uid := h.requesterID(r, utils.PtrString(req.UserID)); uid != "" {
		req.UserID = &uid
	} else {
		req.UserID = nil
	}

	o, created, err := h.Orders.CreateOrder(r.Context(), req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}

	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	utils.WriteJSON(w, code, map[string]any{
		"success": true,
		"orderId": o.ID,
		"order":   order.ToResponse(o),
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   order.ToResponse(o),
	})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.DeleteOrder(r.Context(), r.PathValue("orderId")); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if !utils.IsAdmin(r.Context()) {
		userID = h.requesterID(r, userID)
	}

	orders, err := h.Orders.ListUserOrders(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  order.ToResponses(orders),
	})
}

type verifyOrderRequest struct {
	OrderID string `json:"orderId"`
}

func (h *Handler) VerifyPaymentAndConfirm(w http.ResponseWriter, r *http.Request) {
	var req verifyOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Orders.VerifyAndConfirmPayment(r.Context(), req.OrderID); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment verified and order confirmed",
	})
}

type updateStatusRequest struct {
	OrderID        string  `json:"orderId"`
	Status         string  `json:"status"`
	CustomerEmail  string  `json:"customerEmail"`
	CustomerPhone  string  `json:"customerPhone"`
	CustomerName   string  `json:"customerName"`
	TrackingNumber *string `json:"trackingNumber"`
	Note           *string `json:"note"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.Orders.UpdateStatus(r.Context(), order.UpdateStatusInput{
		OrderID: req.OrderID,
		Status:  req.Status,
		Contact: order.Contact{
			Email: strings.TrimSpace(req.CustomerEmail),
			Phone: strings.TrimSpace(req.CustomerPhone),
			Name:  req.CustomerName,
		},
		Tracking: req.TrackingNumber,
		Note:     req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order status updated to " + req.Status,
	})
}

type confirmDeliveryRequest struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	var req confirmDeliveryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userID := h.requesterID(r, req.UserID)

	if err := h.Orders.ConfirmDelivery(r.Context(), req.OrderID, userID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Delivery confirmed",
	})
}

type referenceRequest struct {
	OrderID   string `json:"orderId"`
	Reference string `json:"reference"`
}

func (h *Handler) CheckReference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	orderID, exists, err := h.Orders.CheckReference(r.Context(), strings.TrimSpace(req.Reference))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"exists": exists}
	if exists {
		resp["orderId"] = orderID
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) AttachReference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Orders.AttachPaymentReference(r.Context(), req.OrderID, strings.TrimSpace(req.Reference)); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type backfillRequest struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

func (h *Handler) BackfillUser(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.Orders.BackfillUserID(r.Context(), req.Email, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"updated": n,
	})
}

type initializeRequest struct {
	Email    string          `json:"email"`
	Amount   decimal.Decimal `json:"amount"`
	Metadata map[string]any  `json:"metadata"`
}

func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Orders.InitializePayment(r.Context(), strings.TrimSpace(req.Email), req.Amount, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.FromCtx(r.Context()).Info("payment initialized",
		zap.String("layer", "handler"),
		zap.String("reference", res.Reference),
	)
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]string{
			"authorizationUrl": res.AuthorizationURL,
			"accessCode":       res.AccessCode,
			"reference":        res.Reference,
		},
	})
}

type verificationResponse struct {
	Reference string         `json:"reference"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency,omitempty"`
	Status    string         `json:"status"`
	PaidAt    string         `json:"paidAt,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Customer  map[string]any `json:"customer"`
	Metadata  map[string]any `json:"metadata"`
}

func toVerificationResponse(v *payment.Verification) verificationResponse {
	resp := verificationResponse{
		Reference: v.Reference,
		Amount:    v.AmountMinorUnits,
		Currency:  v.Currency,
		Status:    v.Status,
		Channel:   v.Channel,
		Customer: map[string]any{
			"email":        v.Customer.Email,
			"customerCode": v.Customer.CustomerCode,
		},
		Metadata: v.Metadata,
	}
	if v.PaidAt != nil {
		resp.PaidAt = v.PaidAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.Orders.VerifyPayment(r.Context(), strings.TrimSpace(req.Reference))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": v.Successful(),
		"data":    toVerificationResponse(v),
	})
}

// Health reports liveness only.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
