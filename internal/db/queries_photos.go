package db

import (
	"database/sql"
	"time"

	"github.com/evhall/fotomatch/internal/model"
)

func CreatePhoto(database *sql.DB, p *model.Photo) error {
	var capturedAt *string
	if p.CapturedAt != nil {
		s := p.CapturedAt.UTC().Format(time.RFC3339)
		capturedAt = &s
	}
	_, err := database.Exec(
		`INSERT INTO photos (id, event_id, storage_key, state, uploaded, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.StorageKey, p.State, boolToInt(p.Uploaded), capturedAt,
	)
	return err
}

func GetPhoto(database *sql.DB, id string) (*model.Photo, error) {
	p := &model.Photo{}
	var uploaded int
	var capturedAt, publishedAt *string
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, event_id, storage_key, state, uploaded, captured_at, published_at, created_at
		 FROM photos WHERE id = ?`, id,
	).Scan(&p.ID, &p.EventID, &p.StorageKey, &p.State, &uploaded, &capturedAt, &publishedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Uploaded = uploaded != 0
	p.CreatedAt = createdAt.Time
	p.CapturedAt = parseTimePtr(capturedAt)
	p.PublishedAt = parseTimePtr(publishedAt)
	return p, nil
}

// ListDeliverablePhotos returns the event's photos that are both uploaded
// and published, ordered by capture time then creation time.
func ListDeliverablePhotos(database *sql.DB, eventID string) ([]model.Photo, error) {
	rows, err := database.Query(
		`SELECT id, event_id, storage_key, state, uploaded, captured_at, published_at, created_at
		 FROM photos
		 WHERE event_id = ? AND state = ? AND uploaded = 1
		 ORDER BY COALESCE(captured_at, created_at) ASC, created_at ASC`,
		eventID, model.PhotoPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		var p model.Photo
		var uploaded int
		var capturedAt, publishedAt *string
		var createdAt SQLiteTime
		if err := rows.Scan(&p.ID, &p.EventID, &p.StorageKey, &p.State, &uploaded,
			&capturedAt, &publishedAt, &createdAt); err != nil {
			return nil, err
		}
		p.Uploaded = uploaded != 0
		p.CreatedAt = createdAt.Time
		p.CapturedAt = parseTimePtr(capturedAt)
		p.PublishedAt = parseTimePtr(publishedAt)
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func MarkPhotoUploaded(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(`UPDATE photos SET uploaded = 1 WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func PublishPhoto(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(
		`UPDATE photos
		 SET state = ?, published_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ? AND uploaded = 1`,
		model.PhotoPublished, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func UnpublishPhoto(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(
		`UPDATE photos SET state = ?, published_at = NULL WHERE id = ?`,
		model.PhotoDraft, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	var st SQLiteTime
	if err := st.Scan(*s); err != nil {
		return nil
	}
	t := st.Time
	return &t
}
