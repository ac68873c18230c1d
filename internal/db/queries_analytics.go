package db

import (
	"database/sql"
	"time"

	"github.com/evhall/fotomatch/internal/model"
)

func InsertSearchEvent(database *sql.DB, se *model.SearchEvent) error {
	_, err := database.Exec(
		`INSERT INTO search_events (id, event_id, match_count, top_similarity)
		 VALUES (?, ?, ?, ?)`,
		se.ID, se.EventID, se.MatchCount, se.TopSimilarity,
	)
	return err
}

func InsertDownloadEvent(database *sql.DB, de *model.DownloadEvent) error {
	_, err := database.Exec(
		`INSERT INTO download_events (id, purchase_id, photo_id, event_id, ip_address, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		de.ID, de.PurchaseID, de.PhotoID, de.EventID, de.IPAddress, de.UserAgent,
	)
	return err
}

// PurchaseTotals aggregates purchase counts and revenue per payment state.
type PurchaseTotals struct {
	State      string
	Count      int
	TotalCents int64
}

func PurchaseTotalsByEvent(database *sql.DB, eventID string) ([]PurchaseTotals, error) {
	rows, err := database.Query(
		`SELECT payment_state, COUNT(*), COALESCE(SUM(total_cents), 0)
		 FROM purchases WHERE event_id = ? GROUP BY payment_state`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []PurchaseTotals
	for rows.Next() {
		var t PurchaseTotals
		if err := rows.Scan(&t.State, &t.Count, &t.TotalCents); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func CountDownloadsByEvent(database *sql.DB, eventID string) (int, error) {
	var n int
	err := database.QueryRow(
		`SELECT COUNT(*) FROM download_events WHERE event_id = ?`, eventID,
	).Scan(&n)
	return n, err
}

func CountSearchesByEvent(database *sql.DB, eventID string) (total, matched int, err error) {
	err = database.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN match_count > 0 THEN 1 ELSE 0 END), 0)
		 FROM search_events WHERE event_id = ?`, eventID,
	).Scan(&total, &matched)
	return
}

// TopSimilaritiesByEvent returns the recorded best-match similarity of every
// search that found at least one match.
func TopSimilaritiesByEvent(database *sql.DB, eventID string) ([]float64, error) {
	rows, err := database.Query(
		`SELECT top_similarity FROM search_events
		 WHERE event_id = ? AND top_similarity IS NOT NULL`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sims = append(sims, s)
	}
	return sims, rows.Err()
}

func DeleteSearchEventsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM search_events WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
