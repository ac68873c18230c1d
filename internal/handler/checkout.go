package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/entitlement"
	"github.com/evhall/fotomatch/internal/errs"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/payment"
)

type checkoutRequest struct {
	EventID    string `json:"event_id"`
	Kind       string `json:"kind"` // single_photo | all_photos
	PhotoID    string `json:"photo_id,omitempty"`
	BuyerEmail string `json:"buyer_email,omitempty"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutCreate — POST /checkout. Creates the provider checkout session
// and the pending purchase that mirrors it.
func (h *Handler) CheckoutCreate(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "payments are not configured")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	event, err := db.GetEvent(h.DB, req.EventID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if event == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such event")
		return
	}

	var item entitlement.ItemSpec
	var itemName string
	switch req.Kind {
	case model.ItemSinglePhoto:
		photo, err := db.GetPhoto(h.DB, req.PhotoID)
		if err != nil {
			renderDenial(w, err)
			return
		}
		if photo == nil || photo.EventID != event.ID || !photo.Deliverable() {
			renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such photo")
			return
		}
		item = entitlement.ItemSpec{
			Kind:        model.ItemSinglePhoto,
			PhotoID:     &photo.ID,
			AmountCents: event.PriceSingleCents,
		}
		itemName = "Single photo"
	case model.ItemAllPhotos:
		if event.PriceAllCents == nil {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "this event does not sell an all-photos bundle")
			return
		}
		item = entitlement.ItemSpec{
			Kind:        model.ItemAllPhotos,
			AmountCents: *event.PriceAllCents,
		}
		itemName = "All photos"
	default:
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind must be single_photo or all_photos")
		return
	}

	sess, err := h.Payments.CreateCheckoutSession(payment.CheckoutParams{
		EventName:   event.Name,
		ItemName:    itemName,
		AmountCents: item.AmountCents,
		Currency:    event.Currency,
		BuyerEmail:  req.BuyerEmail,
	})
	if err != nil {
		slog.Error("create checkout session", "event", event.ID, "error", err)
		renderDenial(w, err)
		return
	}

	if _, err := h.Ent.CreatePending(event.ID, req.BuyerEmail, sess.ID, item, event.Currency); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			renderJSONError(w, http.StatusConflict, "CONFLICT", "checkout session already exists")
			return
		}
		renderDenial(w, err)
		return
	}

	renderJSON(w, http.StatusOK, checkoutResponse{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
	})
}
