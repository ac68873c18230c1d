package db

import (
	"database/sql"

	"github.com/evhall/fotomatch/internal/model"
)

func CreateFaceRecord(database *sql.DB, fr *model.FaceRecord) error {
	_, err := database.Exec(
		`INSERT INTO face_records (id, photo_id, provider, face_handle, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
		fr.ID, fr.PhotoID, fr.Provider, fr.FaceHandle, fr.Confidence,
	)
	return err
}

func ListFaceRecordsByPhoto(database *sql.DB, photoID, provider string) ([]model.FaceRecord, error) {
	rows, err := database.Query(
		`SELECT id, photo_id, provider, face_handle, confidence, created_at
		 FROM face_records WHERE photo_id = ? AND provider = ?`,
		photoID, provider,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.FaceRecord
	for rows.Next() {
		var fr model.FaceRecord
		var createdAt SQLiteTime
		if err := rows.Scan(&fr.ID, &fr.PhotoID, &fr.Provider, &fr.FaceHandle, &fr.Confidence, &createdAt); err != nil {
			return nil, err
		}
		fr.CreatedAt = createdAt.Time
		records = append(records, fr)
	}
	return records, rows.Err()
}

func DeleteFaceRecordsByPhoto(database *sql.DB, photoID, provider string) error {
	_, err := database.Exec(
		`DELETE FROM face_records WHERE photo_id = ? AND provider = ?`,
		photoID, provider,
	)
	return err
}

// FaceMatch couples a face handle with the photo it maps to.
type FaceMatch struct {
	FaceHandle string
	Photo      model.Photo
}

// ResolveFaceHandles maps provider face handles to photos of one event,
// restricted to photos that are uploaded and published. Handles that match
// no record, a foreign event, or a draft photo are silently dropped.
func ResolveFaceHandles(database *sql.DB, eventID, provider string, handles []string) ([]FaceMatch, error) {
	if len(handles) == 0 {
		return nil, nil
	}

	query := `
		SELECT fr.face_handle,
		       p.id, p.event_id, p.storage_key, p.state, p.uploaded, p.captured_at, p.published_at, p.created_at
		FROM face_records fr
		JOIN photos p ON p.id = fr.photo_id
		WHERE p.event_id = ? AND p.state = ? AND p.uploaded = 1
		  AND fr.provider = ? AND fr.face_handle IN (`

	args := []interface{}{eventID, model.PhotoPublished, provider}
	for i, h := range handles {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, h)
	}
	query += ")"

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []FaceMatch
	for rows.Next() {
		var m FaceMatch
		var uploaded int
		var capturedAt, publishedAt *string
		var createdAt SQLiteTime
		if err := rows.Scan(&m.FaceHandle,
			&m.Photo.ID, &m.Photo.EventID, &m.Photo.StorageKey, &m.Photo.State, &uploaded,
			&capturedAt, &publishedAt, &createdAt); err != nil {
			return nil, err
		}
		m.Photo.Uploaded = uploaded != 0
		m.Photo.CreatedAt = createdAt.Time
		m.Photo.CapturedAt = parseTimePtr(capturedAt)
		m.Photo.PublishedAt = parseTimePtr(publishedAt)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
