package handler

import "net/http"

func (h *Handler) trackReferralClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.referrals.TrackClick(r.Context(), r.PathValue("code"), req.CustomerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}
