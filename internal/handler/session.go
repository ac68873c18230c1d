package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

type purchaseSummary struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	PaymentState string `json:"payment_state"`
	TotalCents   int64  `json:"total_cents"`
	Currency     string `json:"currency"`
	CreatedAt    string `json:"created_at"`
}

type sessionResponse struct {
	Purchase       purchaseSummary `json:"purchase"`
	AccessGrant    string          `json:"access_grant"`
	GrantExpiresAt string          `json:"grant_expires_at"`
}

// SessionExchange — GET /sessions/{sessionID}. Presenting a completed
// checkout session id is the sole authentication step for guest buyers:
// it proves session ownership and is exchanged for a purchase-scoped grant.
func (h *Handler) SessionExchange(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	purchase, err := db.GetPurchaseBySession(h.DB, sessionID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if purchase == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such checkout session")
		return
	}
	if purchase.PaymentState != model.PaymentPaid {
		renderJSONError(w, http.StatusConflict, "NOT_PAID", "checkout session is not completed")
		return
	}

	token, expires, err := h.Grants.Issue(purchase.ID)
	if err != nil {
		renderDenial(w, err)
		return
	}

	renderJSON(w, http.StatusOK, sessionResponse{
		Purchase: purchaseSummary{
			ID:           purchase.ID,
			EventID:      purchase.EventID,
			PaymentState: purchase.PaymentState,
			TotalCents:   purchase.TotalCents,
			Currency:     purchase.Currency,
			CreatedAt:    purchase.CreatedAt.UTC().Format(time.RFC3339),
		},
		AccessGrant:    token,
		GrantExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}
