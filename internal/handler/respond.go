package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/domain/stock"
)

const maxBodyBytes = 1 << 20

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.lg.Debug("write response", zap.Error(err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "malformed request body",
		})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Unrecognized errors are
// logged and surface as opaque 500s.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		fields := make([]fieldError, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = fieldError{Field: f.Field, Reason: f.Reason}
		}
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "invalid order attributes",
			Fields:  fields,
		})
		return
	}

	var insufficient *stock.InsufficientStockError
	if errors.As(err, &insufficient) {
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: insufficient.Error(),
		})
		return
	}

	var invalidMove *order.InvalidTransitionError
	if errors.As(err, &invalidMove) {
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: invalidMove.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, referral.ErrCodeNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: err.Error(),
		})

	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, shipping.ErrMethodUnavailable),
		errors.Is(err, payment.ErrUnknownMethod),
		errors.Is(err, order.ErrUnknownStatus):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
		})

	case errors.Is(err, order.ErrTransactionConflict):
		h.writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: "please retry: concurrent update",
		})

	default:
		h.lg.Error("unhandled error", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal error",
		})
	}
}
