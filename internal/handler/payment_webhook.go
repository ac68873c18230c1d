package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/payment"
)

const maxWebhookBody = 1 << 20

// PaymentWebhook — POST /webhooks/payment. The signature is authenticated
// over the raw body before any state is touched; reconciliation itself is
// idempotent, so duplicate deliveries are acknowledged as no-ops.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unreadable body")
		return
	}

	event, err := h.Payments.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		slog.Warn("payment webhook rejected", "error", err)
		renderJSONError(w, http.StatusBadRequest, "BAD_SIGNATURE", "signature verification failed")
		return
	}

	switch event.Outcome {
	case payment.OutcomeSucceeded:
		purchase, applied, err := h.Ent.ReconcileSucceeded(event.SessionID, event.PaymentID, event.VerifiedEmail)
		if err != nil {
			slog.Error("reconcile succeeded", "session", event.SessionID, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "reconciliation failed")
			return
		}
		if applied && purchase != nil {
			slog.Info("purchase paid", "purchase", purchase.ID, "session", event.SessionID)
			h.notifyPaid(purchase.ID, purchase.EventID, purchase.BuyerEmail, purchase.TotalCents, purchase.Currency)
		}

	case payment.OutcomeFailed:
		applied, err := h.Ent.ReconcileFailed(event.SessionID)
		if err != nil {
			slog.Error("reconcile failed", "session", event.SessionID, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "reconciliation failed")
			return
		}
		if applied {
			slog.Info("purchase failed", "session", event.SessionID)
		}
	}

	renderJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// notifyPaid fires the best-effort side effects of a newly paid purchase:
// buyer receipt and photographer webhook. Neither may fail the webhook ack.
func (h *Handler) notifyPaid(purchaseID, eventID, buyerEmail string, totalCents int64, currency string) {
	if h.Webhook.Enabled() {
		h.Webhook.Dispatch("purchase.paid", map[string]interface{}{
			"purchase_id": purchaseID,
			"event_id":    eventID,
			"total_cents": totalCents,
			"currency":    currency,
		})
	}

	if h.Mailer != nil && h.Mailer.Enabled() && buyerEmail != "" {
		eventName := eventID
		if event, err := db.GetEvent(h.DB, eventID); err == nil && event != nil {
			eventName = event.Name
		}
		galleryURL := h.Cfg.BaseURL + "/events/" + eventID + "/photos"
		go func() {
			if err := h.Mailer.SendPurchaseReceipt(buyerEmail, eventName, galleryURL, totalCents, currency); err != nil {
				slog.Error("send purchase receipt", "purchase", purchaseID, "error", err)
			}
		}()
	}
}
