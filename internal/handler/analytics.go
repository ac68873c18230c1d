package handler

import (
	"net/http"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

type similarityStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

type analyticsResponse struct {
	EventID         string           `json:"event_id"`
	PaidPurchases   int              `json:"paid_purchases"`
	RevenueCents    int64            `json:"revenue_cents"`
	PendingCount    int              `json:"pending_count"`
	FailedCount     int              `json:"failed_count"`
	Downloads       int              `json:"downloads"`
	Searches        int              `json:"searches"`
	SearchesMatched int              `json:"searches_matched"`
	Similarity      *similarityStats `json:"similarity,omitempty"`
}

// EventAnalytics — GET /events/{eventID}/analytics (publish-key auth).
// Purchase conversion, delivery volume, and the distribution of best-match
// similarities across searches.
func (h *Handler) EventAnalytics(w http.ResponseWriter, r *http.Request) {
	event := eventFromContext(r.Context())

	resp := analyticsResponse{EventID: event.ID}

	totals, err := db.PurchaseTotalsByEvent(h.DB, event.ID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	for _, t := range totals {
		switch t.State {
		case model.PaymentPaid:
			resp.PaidPurchases = t.Count
			resp.RevenueCents = t.TotalCents
		case model.PaymentPending:
			resp.PendingCount = t.Count
		case model.PaymentFailed:
			resp.FailedCount = t.Count
		}
	}

	if resp.Downloads, err = db.CountDownloadsByEvent(h.DB, event.ID); err != nil {
		renderDenial(w, err)
		return
	}
	if resp.Searches, resp.SearchesMatched, err = db.CountSearchesByEvent(h.DB, event.ID); err != nil {
		renderDenial(w, err)
		return
	}

	sims, err := db.TopSimilaritiesByEvent(h.DB, event.ID)
	if err != nil {
		renderDenial(w, err)
		return
	}
	if len(sims) > 0 {
		sort.Float64s(sims)
		resp.Similarity = &similarityStats{
			Count:  len(sims),
			Mean:   stat.Mean(sims, nil),
			StdDev: stat.StdDev(sims, nil),
			Median: stat.Quantile(0.5, stat.Empirical, sims, nil),
			P90:    stat.Quantile(0.9, stat.Empirical, sims, nil),
		}
	}

	renderJSON(w, http.StatusOK, resp)
}
