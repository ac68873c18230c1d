package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/faces"
	"github.com/evhall/fotomatch/internal/model"
)

const (
	maxSelfieBytes     = 8 << 20
	defaultSearchLimit = 20
)

type matchEntry struct {
	PhotoID    string  `json:"photo_id"`
	Similarity float64 `json:"similarity"`
	PreviewURL string  `json:"preview_url,omitempty"`
	CapturedAt *string `json:"captured_at,omitempty"`
}

type findMeResponse struct {
	Status  string       `json:"status"`
	Matches []matchEntry `json:"matches"`
	Message string       `json:"message,omitempty"`
}

// FindMe — POST /events/{eventID}/find-me?limit=. The body is the selfie
// image. "No face in your selfie" and "nothing matched" are distinct
// outcomes because the guest guidance differs.
func (h *Handler) FindMe(w http.ResponseWriter, r *http.Request) {
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

	limit := defaultSearchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > faces.MaxLimit {
			renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	selfie, err := io.ReadAll(io.LimitReader(r.Body, maxSelfieBytes+1))
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unreadable body")
		return
	}
	if len(selfie) == 0 {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "selfie image body is required")
		return
	}
	if len(selfie) > maxSelfieBytes {
		renderJSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "selfie image is too large")
		return
	}

	status, matches, err := h.Matcher.Match(r.Context(), eventID, selfie, limit)

	switch status {
	case faces.MatchOK, faces.NoMatches:
		h.recordSearch(eventID, matches)
		resp := findMeResponse{Status: string(status), Matches: make([]matchEntry, 0, len(matches))}
		if status == faces.NoMatches {
			resp.Message = "no event photos matched your selfie"
		}
		for _, m := range matches {
			entry := matchEntry{
				PhotoID:    m.Photo.ID,
				Similarity: m.Similarity,
				PreviewURL: m.PreviewURL,
			}
			if m.Photo.CapturedAt != nil {
				s := m.Photo.CapturedAt.UTC().Format(time.RFC3339)
				entry.CapturedAt = &s
			}
			resp.Matches = append(resp.Matches, entry)
		}
		renderJSON(w, http.StatusOK, resp)

	case faces.SelfieNoFace:
		h.recordSearch(eventID, nil)
		renderJSONError(w, http.StatusUnprocessableEntity, "NO_FACE_DETECTED", "no face was detected in your selfie")

	case faces.MatchDisabled:
		renderJSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "selfie search is not configured")

	default:
		slog.Error("selfie search", "event", eventID, "error", err)
		renderJSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "selfie search failed")
	}
}

func (h *Handler) recordSearch(eventID string, matches []faces.Match) {
	se := &model.SearchEvent{
		ID:         uuid.New().String(),
		EventID:    eventID,
		MatchCount: len(matches),
	}
	if len(matches) > 0 {
		top := matches[0].Similarity
		se.TopSimilarity = &top
	}
	if err := db.InsertSearchEvent(h.DB, se); err != nil {
		slog.Error("record search event", "event", eventID, "error", err)
	}
}
