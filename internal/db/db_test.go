package db

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	fotomatch "github.com/evhall/fotomatch"
	"github.com/evhall/fotomatch/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, Migrate(database, fotomatch.MigrationFS))
	return database
}

func seedEvent(t *testing.T, database *sql.DB) *model.Event {
	t.Helper()
	e := &model.Event{
		ID:               uuid.New().String(),
		Name:             "test event",
		Currency:         "eur",
		PriceSingleCents: 500,
		PublishKeyHash:   "x",
	}
	require.NoError(t, CreateEvent(database, e))
	return e
}

func seedPhoto(t *testing.T, database *sql.DB, eventID string) *model.Photo {
	t.Helper()
	p := &model.Photo{
		ID:         uuid.New().String(),
		EventID:    eventID,
		StorageKey: "k/" + uuid.New().String(),
		State:      model.PhotoDraft,
	}
	require.NoError(t, CreatePhoto(database, p))
	return p
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database, fotomatch.MigrationFS))

	var ledgered int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&ledgered))
	require.Greater(t, ledgered, 0)

	// A rerun finds everything ledgered and applies nothing.
	require.NoError(t, Migrate(database, fotomatch.MigrationFS))
	var again int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&again))
	require.Equal(t, ledgered, again)
}

func TestPublishRequiresUpload(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID)

	applied, err := PublishPhoto(database, photo.ID)
	require.NoError(t, err)
	require.False(t, applied)

	applied, err = MarkPhotoUploaded(database, photo.ID)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = PublishPhoto(database, photo.ID)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := GetPhoto(database, photo.ID)
	require.NoError(t, err)
	require.Equal(t, model.PhotoPublished, got.State)
	require.NotNil(t, got.PublishedAt)

	applied, err = UnpublishPhoto(database, photo.ID)
	require.NoError(t, err)
	require.True(t, applied)
	got, err = GetPhoto(database, photo.ID)
	require.NoError(t, err)
	require.Equal(t, model.PhotoDraft, got.State)
	require.Nil(t, got.PublishedAt)
}

func TestJobQueueDedupeAndClaim(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID)

	job := &model.Job{ID: uuid.New().String(), JobType: model.JobIndexFaces, PhotoID: photo.ID}
	inserted, err := EnqueueJobIfNotExists(database, job)
	require.NoError(t, err)
	require.True(t, inserted)

	// An unfinished job of the same type blocks re-enqueueing.
	dup := &model.Job{ID: uuid.New().String(), JobType: model.JobIndexFaces, PhotoID: photo.ID}
	inserted, err = EnqueueJobIfNotExists(database, dup)
	require.NoError(t, err)
	require.False(t, inserted)

	claimed, err := ClaimNextJob(database)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, model.JobRunning, claimed.State)
	require.Equal(t, 1, claimed.Attempts)

	// A running job still blocks re-enqueueing; the queue itself is empty.
	inserted, err = EnqueueJobIfNotExists(database, dup)
	require.NoError(t, err)
	require.False(t, inserted)
	next, err := ClaimNextJob(database)
	require.NoError(t, err)
	require.Nil(t, next)

	require.NoError(t, CompleteJob(database, claimed.ID))
	inserted, err = EnqueueJobIfNotExists(database, dup)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestResolveFaceHandlesFiltersByEventAndState(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	other := seedEvent(t, database)

	published := seedPhoto(t, database, event.ID)
	_, err := MarkPhotoUploaded(database, published.ID)
	require.NoError(t, err)
	_, err = PublishPhoto(database, published.ID)
	require.NoError(t, err)

	draft := seedPhoto(t, database, event.ID)
	foreign := seedPhoto(t, database, other.ID)

	for i, photoID := range []string{published.ID, draft.ID, foreign.ID} {
		require.NoError(t, CreateFaceRecord(database, &model.FaceRecord{
			ID:         uuid.New().String(),
			PhotoID:    photoID,
			Provider:   "fake",
			FaceHandle: []string{"F1", "F2", "F3"}[i],
		}))
	}

	matches, err := ResolveFaceHandles(database, event.ID, "fake", []string{"F1", "F2", "F3"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "F1", matches[0].FaceHandle)
	require.Equal(t, published.ID, matches[0].Photo.ID)
}

func TestDeletingPhotoCascadesFaceRecords(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID)
	require.NoError(t, CreateFaceRecord(database, &model.FaceRecord{
		ID:         uuid.New().String(),
		PhotoID:    photo.ID,
		Provider:   "fake",
		FaceHandle: "F1",
	}))

	_, err := database.Exec(`DELETE FROM photos WHERE id = ?`, photo.ID)
	require.NoError(t, err)

	records, err := ListFaceRecordsByPhoto(database, photo.ID, "fake")
	require.NoError(t, err)
	require.Empty(t, records)
}
