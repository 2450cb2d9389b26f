package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartResponse struct {
	ID         string             `json:"id"`
	CustomerID string             `json:"customer_id,omitempty"`
	Items      []cartItemResponse `json:"items"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	CreatedAt  time.Time          `json:"created_at"`
}

type cartItemResponse struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     it.PriceSnapshot,
		}
	}
	return cartResponse{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		Items:      items,
		Subtotal:   c.Subtotal(),
		CreatedAt:  c.CreatedAt,
	}
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.carts.CreateCart(r.Context(), req.CustomerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toCartResponse(c))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCartResponse(c))
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.carts.AddItem(r.Context(), r.PathValue("id"), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.carts.UpdateItem(r.Context(), r.PathValue("id"), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(),
		r.PathValue("id"),
		r.PathValue("productID"),
		r.URL.Query().Get("variant_id"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCartResponse(c))
}
