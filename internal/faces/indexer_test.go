package faces

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	fotomatch "github.com/evhall/fotomatch"
	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

// fakeProvider scripts the identity provider for tests and records the
// delete calls made against it.
type fakeProvider struct {
	indexResults  []IndexedFace
	indexErr      error
	searchResults []Candidate
	searchErr     error
	deleted       [][]string
	ensureCalls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) EnsureCollection(ctx context.Context, collectionID string) error {
	f.ensureCalls++
	return nil
}

func (f *fakeProvider) IndexFaces(ctx context.Context, collectionID, storageKey, externalID string, maxFaces int) ([]IndexedFace, error) {
	return f.indexResults, f.indexErr
}

func (f *fakeProvider) DeleteFaces(ctx context.Context, collectionID string, handles []string) error {
	f.deleted = append(f.deleted, handles)
	return nil
}

func (f *fakeProvider) SearchByImage(ctx context.Context, collectionID string, image []byte, maxCandidates int, minSimilarity float64) ([]Candidate, error) {
	return f.searchResults, f.searchErr
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, fotomatch.MigrationFS))
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
	require.NoError(t, db.CreateEvent(database, e))
	return e
}

func seedPhoto(t *testing.T, database *sql.DB, eventID, state string, uploaded bool) *model.Photo {
	t.Helper()
	p := &model.Photo{
		ID:         uuid.New().String(),
		EventID:    eventID,
		StorageKey: "events/" + eventID + "/originals/" + uuid.New().String(),
		State:      state,
		Uploaded:   uploaded,
	}
	require.NoError(t, db.CreatePhoto(database, p))
	return p
}

func TestIndexDisabledWithoutProvider(t *testing.T) {
	ix := &Indexer{DB: newTestDB(t), Provider: nil, CollectionID: "c"}
	status, err := ix.Index(context.Background(), &model.Photo{ID: "p"})
	require.NoError(t, err)
	require.Equal(t, IndexDisabled, status)
}

func TestIndexRecordsSingleFace(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID, model.PhotoDraft, true)

	conf := 99.1
	provider := &fakeProvider{indexResults: []IndexedFace{{Handle: "F1", Confidence: &conf}}}
	ix := &Indexer{DB: database, Provider: provider, CollectionID: "c"}

	status, err := ix.Index(context.Background(), photo)
	require.NoError(t, err)
	require.Equal(t, Indexed, status)
	require.Equal(t, 1, provider.ensureCalls)

	records, err := db.ListFaceRecordsByPhoto(database, photo.ID, "fake")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "F1", records[0].FaceHandle)
}

func TestReindexReplacesPriorRecord(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID, model.PhotoDraft, true)

	provider := &fakeProvider{indexResults: []IndexedFace{{Handle: "F1"}}}
	ix := &Indexer{DB: database, Provider: provider, CollectionID: "c"}

	_, err := ix.Index(context.Background(), photo)
	require.NoError(t, err)

	provider.indexResults = []IndexedFace{{Handle: "F2"}}
	status, err := ix.Index(context.Background(), photo)
	require.NoError(t, err)
	require.Equal(t, Indexed, status)

	records, err := db.ListFaceRecordsByPhoto(database, photo.ID, "fake")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "F2", records[0].FaceHandle)
	require.Equal(t, [][]string{{"F1"}}, provider.deleted)
}

func TestIndexNoFaceDetected(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID, model.PhotoDraft, true)

	provider := &fakeProvider{}
	ix := &Indexer{DB: database, Provider: provider, CollectionID: "c"}

	status, err := ix.Index(context.Background(), photo)
	require.NoError(t, err)
	require.Equal(t, NoFaceDetected, status)

	records, err := db.ListFaceRecordsByPhoto(database, photo.ID, "fake")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestGroupPhotoKeepsFirstFace(t *testing.T) {
	database := newTestDB(t)
	event := seedEvent(t, database)
	photo := seedPhoto(t, database, event.ID, model.PhotoDraft, true)

	provider := &fakeProvider{indexResults: []IndexedFace{
		{Handle: "F1"}, {Handle: "F2"}, {Handle: "F3"},
	}}
	ix := &Indexer{DB: database, Provider: provider, CollectionID: "c"}

	status, err := ix.Index(context.Background(), photo)
	require.NoError(t, err)
	require.Equal(t, Indexed, status)

	records, err := db.ListFaceRecordsByPhoto(database, photo.ID, "fake")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "F1", records[0].FaceHandle)
	require.Equal(t, [][]string{{"F2", "F3"}}, provider.deleted)
}

func TestIndexWithoutStorageKeyFails(t *testing.T) {
	provider := &fakeProvider{}
	ix := &Indexer{DB: newTestDB(t), Provider: provider, CollectionID: "c"}

	status, err := ix.Index(context.Background(), &model.Photo{ID: "p"})
	require.Error(t, err)
	require.Equal(t, IndexError, status)
}
