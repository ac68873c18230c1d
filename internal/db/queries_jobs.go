package db

import (
	"database/sql"
	"time"

	"github.com/evhall/fotomatch/internal/model"
)

// EnqueueJobIfNotExists inserts a job unless an unfinished job of the same
// type already exists for the photo. Returns whether a row was inserted.
func EnqueueJobIfNotExists(database *sql.DB, j *model.Job) (bool, error) {
	res, err := database.Exec(
		`INSERT INTO jobs (id, job_type, photo_id, state)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM jobs WHERE photo_id = ? AND job_type = ? AND state IN (?, ?)
		 )`,
		j.ID, j.JobType, j.PhotoID, model.JobQueued,
		j.PhotoID, j.JobType, model.JobQueued, model.JobRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClaimNextJob atomically marks the oldest queued job as running and
// returns it, or nil when the queue is empty.
func ClaimNextJob(database *sql.DB) (*model.Job, error) {
	j := &model.Job{}
	var createdAt, startedAt SQLiteTime
	err := database.QueryRow(`
		UPDATE jobs
		SET state = ?, attempts = attempts + 1,
		    started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = (
			SELECT id FROM jobs WHERE state = ? ORDER BY created_at ASC LIMIT 1
		)
		RETURNING id, job_type, photo_id, state, attempts, error_message, created_at, started_at`,
		model.JobRunning, model.JobQueued,
	).Scan(&j.ID, &j.JobType, &j.PhotoID, &j.State, &j.Attempts, &j.ErrorMessage, &createdAt, &startedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt = createdAt.Time
	t := startedAt.Time
	j.StartedAt = &t
	return j, nil
}

func CompleteJob(database *sql.DB, id string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		model.JobDone, id,
	)
	return err
}

func FailJob(database *sql.DB, id, message string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = ?, error_message = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		model.JobFailed, message, id,
	)
	return err
}

// DeleteFinishedJobsBefore removes done and failed jobs older than cutoff.
func DeleteFinishedJobsBefore(database *sql.DB, cutoff time.Time) (int64, error) {
	res, err := database.Exec(
		`DELETE FROM jobs WHERE state IN (?, ?) AND completed_at < ?`,
		model.JobDone, model.JobFailed, cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
