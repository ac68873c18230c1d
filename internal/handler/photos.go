package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/sse"
	"github.com/evhall/fotomatch/internal/storage"
)

type galleryPhoto struct {
	ID         string  `json:"id"`
	PreviewURL string  `json:"preview_url,omitempty"`
	CapturedAt *string `json:"captured_at,omitempty"`
}

// EventGallery — GET /events/{eventID}/photos. Guest-facing listing of the
// event's published photos with preview URLs.
func (h *Handler) EventGallery(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := db.GetEvent(h.DB, eventID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if event == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such event")
		return
	}

	photos, err := db.ListDeliverablePhotos(h.DB, eventID)
	if err != nil {
		renderDenial(w, err)
		return
	}

	out := make([]galleryPhoto, 0, len(photos))
	for i := range photos {
		gp := galleryPhoto{ID: photos[i].ID}
		if photos[i].CapturedAt != nil {
			s := photos[i].CapturedAt.UTC().Format(time.RFC3339)
			gp.CapturedAt = &s
		}
		if h.Signer != nil {
			url, err := h.Signer.MintDownload(r.Context(), photos[i].StorageKey, storage.PreviewTTL)
			if err != nil {
				slog.Warn("mint gallery preview", "photo", photos[i].ID, "error", err)
			} else {
				gp.PreviewURL = url
			}
		}
		out = append(out, gp)
	}

	renderJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"photos":   out,
	})
}

// PhotoUploadURL — POST /events/{eventID}/photos/{photoID}/upload-url.
// Creates the photo row if it does not exist yet and mints a presigned PUT
// for its storage key.
func (h *Handler) PhotoUploadURL(w http.ResponseWriter, r *http.Request) {
	event := eventFromContext(r.Context())
	photoID := chi.URLParam(r, "photoID")

	if h.Signer == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "storage is not configured")
		return
	}

	photo, err := db.GetPhoto(h.DB, photoID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if photo == nil {
		photo = &model.Photo{
			ID:         photoID,
			EventID:    event.ID,
			StorageKey: "events/" + event.ID + "/originals/" + photoID,
			State:      model.PhotoDraft,
		}
		if err := db.CreatePhoto(h.DB, photo); err != nil {
			renderDenial(w, err)
			return
		}
	} else if photo.EventID != event.ID {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such photo")
		return
	}

	url, err := h.Signer.MintUpload(r.Context(), photo.StorageKey, "image/jpeg")
	if err != nil {
		renderDenial(w, err)
		return
	}

	renderJSON(w, http.StatusOK, map[string]string{
		"photo_id":   photo.ID,
		"upload_url": url,
	})
}

// PhotoUploaded — POST /events/{eventID}/photos/{photoID}/uploaded.
// Marks the upload complete, queues face indexing, and signals viewers.
func (h *Handler) PhotoUploaded(w http.ResponseWriter, r *http.Request) {
	event := eventFromContext(r.Context())
	photo, ok := h.ownedPhoto(w, r, event)
	if !ok {
		return
	}

	if _, err := db.MarkPhotoUploaded(h.DB, photo.ID); err != nil {
		renderDenial(w, err)
		return
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		JobType: model.JobIndexFaces,
		PhotoID: photo.ID,
	}
	if _, err := db.EnqueueJobIfNotExists(h.DB, job); err != nil {
		slog.Error("enqueue index job", "photo", photo.ID, "error", err)
	}

	h.Hub.Publish(event.ID, sse.Update{Type: sse.PhotoUploaded, EventID: event.ID, PhotoID: photo.ID})
	renderJSON(w, http.StatusOK, map[string]string{"photo_id": photo.ID, "state": "uploaded"})
}

// PhotoPublish — POST /events/{eventID}/photos/{photoID}/publish.
func (h *Handler) PhotoPublish(w http.ResponseWriter, r *http.Request) {
	event := eventFromContext(r.Context())
	photo, ok := h.ownedPhoto(w, r, event)
	if !ok {
		return
	}

	published, err := db.PublishPhoto(h.DB, photo.ID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if !published {
		renderJSONError(w, http.StatusConflict, "NOT_UPLOADED", "photo upload is not complete")
		return
	}

	h.Hub.Publish(event.ID, sse.Update{Type: sse.PhotoPublished, EventID: event.ID, PhotoID: photo.ID})
	if h.Webhook.Enabled() {
		h.Webhook.Dispatch("photo.published", map[string]string{
			"event_id": event.ID,
			"photo_id": photo.ID,
		})
	}
	renderJSON(w, http.StatusOK, map[string]string{"photo_id": photo.ID, "state": model.PhotoPublished})
}

// PhotoUnpublish — POST /events/{eventID}/photos/{photoID}/unpublish.
func (h *Handler) PhotoUnpublish(w http.ResponseWriter, r *http.Request) {
	event := eventFromContext(r.Context())
	photo, ok := h.ownedPhoto(w, r, event)
	if !ok {
		return
	}

	if _, err := db.UnpublishPhoto(h.DB, photo.ID); err != nil {
		renderDenial(w, err)
		return
	}

	h.Hub.Publish(event.ID, sse.Update{Type: sse.PhotoUnpublished, EventID: event.ID, PhotoID: photo.ID})
	renderJSON(w, http.StatusOK, map[string]string{"photo_id": photo.ID, "state": model.PhotoDraft})
}

func (h *Handler) ownedPhoto(w http.ResponseWriter, r *http.Request, event *model.Event) (*model.Photo, bool) {
	photoID := chi.URLParam(r, "photoID")
	photo, err := db.GetPhoto(h.DB, photoID)
	if err != nil {
		renderDenial(w, err)
		return nil, false
	}
	if photo == nil || photo.EventID != event.ID {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such photo")
		return nil, false
	}
	return photo, true
}
