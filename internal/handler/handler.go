// Package handler exposes the storefront over HTTP: cart management,
// checkout, order lifecycle, and referral clicks. Handlers translate between
// JSON and domain types; business rules live in the domain services.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/referral"
)

// Handler bundles the domain services behind the HTTP API.
type Handler struct {
	carts     *cart.Service
	assembler *order.Assembler
	lifecycle *order.Lifecycle
	referrals *referral.Attributor
	lg        *zap.Logger
}

// New constructs a Handler with its domain dependencies.
func New(
	carts *cart.Service,
	assembler *order.Assembler,
	lifecycle *order.Lifecycle,
	referrals *referral.Attributor,
	lg *zap.Logger,
) *Handler {
	return &Handler{
		carts:     carts,
		assembler: assembler,
		lifecycle: lifecycle,
		referrals: referrals,
		lg:        lg,
	}
}

// Routes registers all API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/carts", h.createCart)
	mux.HandleFunc("GET /api/carts/{id}", h.getCart)
	mux.HandleFunc("POST /api/carts/{id}/items", h.addCartItem)
	mux.HandleFunc("PUT /api/carts/{id}/items", h.updateCartItem)
	mux.HandleFunc("DELETE /api/carts/{id}/items/{productID}", h.removeCartItem)

	mux.HandleFunc("POST /api/checkout", h.checkout)

	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.transitionOrder)
	mux.HandleFunc("POST /api/orders/{id}/capture", h.capturePayment)
	mux.HandleFunc("POST /api/orders/{id}/refund", h.refundOrder)

	mux.HandleFunc("POST /api/referrals/{code}/clicks", h.trackReferralClick)
}
