package transport

import (
	"errors"
	"net/http"

	"cediman-be/internal/logger"
	"cediman-be/internal/order"
	"cediman-be/internal/payment"
	"cediman-be/internal/utils"

	"go.uber.org/zap"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a domain error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, order.ErrMissingReference):
		return http.StatusBadRequest, "Order has no payment reference"
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden, "Not allowed to modify this order"
	case errors.Is(err, order.ErrPaymentNotSuccessful):
		return http.StatusBadRequest, "Payment not successful"
	case errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, order.ErrDuplicateReference):
		return http.StatusConflict, "Payment reference already used"
	case errors.Is(err, order.ErrReferenceLocked):
		return http.StatusConflict, "Order payment reference can no longer be changed"
	case errors.Is(err, payment.ErrGatewayTimeout):
		return http.StatusRequestTimeout, "Payment gateway timed out"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusInternalServerError, "Payment gateway unavailable"
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusInternalServerError, "Payment gateway rejected the request"
	case errors.Is(err, order.ErrStoreWrite):
		return http.StatusInternalServerError, "Failed to save order"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)

	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "handler"),
		zap.String("path", r.URL.Path),
		zap.Int("status", code),
	)
	if code >= http.StatusInternalServerError {
		log.Error("request error", zap.Error(err))
	} else {
		log.Warn("request rejected", zap.Error(err))
	}

	resp := errorResponse{Error: msg}
	var (
		pns   *order.PaymentNotSuccessfulError
		under *order.UnderpaidError
	)
	switch {
	case errors.As(err, &pns):
		resp.Details = pns.Status
	case errors.As(err, &under):
		resp.Details = "underpaid"
	}
	utils.WriteJSON(w, code, resp)
}
