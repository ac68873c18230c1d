package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

type downloadResponse struct {
	PhotoID     string `json:"photo_id"`
	DownloadURL string `json:"download_url"`
}

type bundleResponse struct {
	PurchaseID string             `json:"purchase_id"`
	Photos     []downloadResponse `json:"photos"`
}

// DownloadPhoto — GET /purchases/{purchaseID}/download/photo/{photoID}.
func (h *Handler) DownloadPhoto(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseID")
	photoID := chi.URLParam(r, "photoID")

	url, err := h.Gate.AuthorizeDownload(r.Context(), purchaseID, extractGrant(r), photoID)
	if err != nil {
		renderDenial(w, err)
		return
	}

	h.recordDownload(r, purchaseID, photoID)
	renderJSON(w, http.StatusOK, downloadResponse{PhotoID: photoID, DownloadURL: url})
}

// DownloadAll — GET /purchases/{purchaseID}/download/all. Requires an
// all-photos entitlement; the photo set is evaluated now, not at purchase
// time.
func (h *Handler) DownloadAll(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseID")

	items, err := h.Gate.AuthorizeBundle(r.Context(), purchaseID, extractGrant(r))
	if err != nil {
		renderDenial(w, err)
		return
	}

	resp := bundleResponse{PurchaseID: purchaseID, Photos: make([]downloadResponse, 0, len(items))}
	for _, item := range items {
		resp.Photos = append(resp.Photos, downloadResponse{PhotoID: item.PhotoID, DownloadURL: item.URL})
		h.recordDownload(r, purchaseID, item.PhotoID)
	}
	renderJSON(w, http.StatusOK, resp)
}

func (h *Handler) recordDownload(r *http.Request, purchaseID, photoID string) {
	purchase, err := db.GetPurchase(h.DB, purchaseID)
	if err != nil || purchase == nil {
		return
	}
	event := &model.DownloadEvent{
		ID:         uuid.New().String(),
		PurchaseID: purchaseID,
		PhotoID:    photoID,
		EventID:    purchase.EventID,
		IPAddress:  realIP(r),
		UserAgent:  r.UserAgent(),
	}
	if err := db.InsertDownloadEvent(h.DB, event); err != nil {
		slog.Error("record download event", "purchase", purchaseID, "photo", photoID, "error", err)
	}
}
