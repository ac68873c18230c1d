package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

type contextKey string

const eventKey contextKey = "event"

// RequirePublishKey authenticates the photographer-side endpoints with the
// event's publish key (Authorization: Bearer <key>, checked against the
// stored bcrypt hash) and stashes the event in the request context.
func (h *Handler) RequirePublishKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing publish key")
			return
		}
		key := strings.TrimPrefix(authHeader, "Bearer ")

		event, err := db.GetEvent(h.DB, eventID)
		if err != nil {
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			return
		}
		if event == nil {
			renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such event")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(event.PublishKeyHash), []byte(key)) != nil {
			renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid publish key")
			return
		}

		ctx := context.WithValue(r.Context(), eventKey, event)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func eventFromContext(ctx context.Context) *model.Event {
	e, _ := ctx.Value(eventKey).(*model.Event)
	return e
}
