package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

type addressPayload struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a addressPayload) toDomain() order.Address {
	return order.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func fromAddress(a order.Address) addressPayload {
	return addressPayload{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type orderResponse struct {
	ID              string              `json:"id"`
	CustomerID      string              `json:"customer_id,omitempty"`
	Status          string              `json:"status"`
	Items           []lineItemResponse  `json:"items"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Discount        decimal.Decimal     `json:"discount"`
	Shipping        decimal.Decimal     `json:"shipping"`
	Tax             decimal.Decimal     `json:"tax"`
	GrandTotal      decimal.Decimal     `json:"grand_total"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	BillingAddress  addressPayload      `json:"billing_address"`
	ShippingAddress addressPayload      `json:"shipping_address"`
	History         []historyEntry      `json:"history"`
	CreatedAt       time.Time           `json:"created_at"`
}

type lineItemResponse struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type historyEntry struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]lineItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		}
	}
	history := make([]historyEntry, len(o.History))
	for i, hc := range o.History {
		history[i] = historyEntry{
			From:   string(hc.From),
			To:     string(hc.To),
			At:     hc.At,
			Actor:  hc.Actor,
			Reason: hc.Reason,
		}
	}
	return orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		Items:           items,
		Subtotal:        o.Totals.Subtotal,
		Discount:        o.Totals.Discount,
		Shipping:        o.Totals.Shipping,
		Tax:             o.Totals.Tax,
		GrandTotal:      o.Totals.GrandTotal,
		CouponCode:      o.CouponCode,
		PaymentMethod:   o.PaymentMethod,
		BillingAddress:  fromAddress(o.BillingAddress),
		ShippingAddress: fromAddress(o.ShippingAddress),
		History:         history,
		CreatedAt:       o.CreatedAt,
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.lifecycle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	to, err := order.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	o, err := h.lifecycle.Transition(r.Context(), r.PathValue("id"), to, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.lifecycle.CapturePayment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	o, err := h.lifecycle.Refund(r.Context(), r.PathValue("id"), actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}
