package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/order"
)

type checkoutRequest struct {
	CartID          string         `json:"cart_id"`
	CustomerID      string         `json:"customer_id"`
	CouponCode      string         `json:"coupon_code"`
	PaymentMethod   string         `json:"payment_method"`
	ShippingMethod  string         `json:"shipping_method"`
	BillingAddress  addressPayload `json:"billing_address"`
	ShippingAddress addressPayload `json:"shipping_address"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.assembler.CreateOrderFromCart(r.Context(), order.CreateOrderRequest{
		CartID:          req.CartID,
		CustomerID:      req.CustomerID,
		CouponCode:      req.CouponCode,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		BillingAddress:  req.BillingAddress.toDomain(),
		ShippingAddress: req.ShippingAddress.toDomain(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(o))
}
