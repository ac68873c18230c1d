package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/evhall/fotomatch/internal/config"
	"github.com/evhall/fotomatch/internal/delivery"
	"github.com/evhall/fotomatch/internal/email"
	"github.com/evhall/fotomatch/internal/entitlement"
	"github.com/evhall/fotomatch/internal/errs"
	"github.com/evhall/fotomatch/internal/faces"
	"github.com/evhall/fotomatch/internal/grant"
	"github.com/evhall/fotomatch/internal/payment"
	"github.com/evhall/fotomatch/internal/sse"
	"github.com/evhall/fotomatch/internal/storage"
	"github.com/evhall/fotomatch/internal/webhook"
)

type Handler struct {
	DB       *sql.DB
	Cfg      *config.Config
	Hub      *sse.Hub
	Matcher  *faces.Matcher
	Indexer  *faces.Indexer
	Gate     *delivery.Gate
	Ent      *entitlement.Store
	Grants   *grant.Issuer
	Signer   storage.Signer
	Payments payment.Provider
	Mailer   *email.Mailer
	Webhook  *webhook.Dispatcher
}

type jsonError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("render json", "error", err)
	}
}

func renderJSONError(w http.ResponseWriter, status int, code, message string) {
	renderJSON(w, status, map[string]jsonError{"error": {Code: code, Message: message}})
}

// renderDenial maps gate and store errors to caller-facing denials.
// "Pay first" and "not purchased" stay distinct forbiddens, never a
// generic failure.
func renderDenial(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, delivery.ErrNotPaid):
		renderJSONError(w, http.StatusForbidden, "NOT_PAID", "purchase is not paid")
	case errors.Is(err, delivery.ErrNotEntitled):
		renderJSONError(w, http.StatusForbidden, "NOT_ENTITLED", "this item was not purchased")
	case errors.Is(err, errs.ErrUnauthorized):
		renderJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid access grant")
	case errors.Is(err, errs.ErrForbidden):
		renderJSONError(w, http.StatusForbidden, "FORBIDDEN", "not allowed")
	case errors.Is(err, errs.ErrNotFound):
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such resource")
	case errors.Is(err, errs.ErrNotConfigured):
		renderJSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "integration is not configured")
	case errors.Is(err, errs.ErrUpstream):
		renderJSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "provider call failed")
	default:
		slog.Error("internal error", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// extractGrant pulls the access grant from the request: bearer header,
// then query parameter, then custom header, in that precedence order.
func extractGrant(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if g := r.URL.Query().Get("grant"); g != "" {
		return g
	}
	return r.Header.Get("X-Access-Grant")
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
