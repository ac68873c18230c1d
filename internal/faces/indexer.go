package faces

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

// Index outcomes.
type IndexStatus string

const (
	Indexed        IndexStatus = "indexed"
	NoFaceDetected IndexStatus = "no_face_detected"
	IndexDisabled  IndexStatus = "disabled"
	IndexError     IndexStatus = "error"
)

// Indexer maintains the one-face-per-photo mapping between photos and
// provider face handles. Re-indexing the same photo is idempotent:
// prior records are deleted, never appended to.
type Indexer struct {
	DB           *sql.DB
	Provider     Provider
	CollectionID string

	mu              sync.Mutex
	collectionReady bool
}

// Index submits the photo to the provider and records the resulting face.
// A crash between the delete and the create leaves the photo with zero
// records, which the next index repairs; until then it is simply
// unmatchable.
func (ix *Indexer) Index(ctx context.Context, photo *model.Photo) (IndexStatus, error) {
	if ix.Provider == nil {
		return IndexDisabled, nil
	}
	if photo.StorageKey == "" {
		return IndexError, fmt.Errorf("photo %s has no storage key", photo.ID)
	}

	if err := ix.ensureCollection(ctx); err != nil {
		return IndexError, err
	}

	provider := ix.Provider.Name()

	// Drop any prior mapping for this photo, provider side first.
	// Provider-side deletion is a reconciling step: skipping it on a
	// transient fault only leaves orphaned collection faces that resolve
	// to nothing at search time.
	prior, err := db.ListFaceRecordsByPhoto(ix.DB, photo.ID, provider)
	if err != nil {
		return IndexError, fmt.Errorf("list prior face records: %w", err)
	}
	if len(prior) > 0 {
		handles := make([]string, len(prior))
		for i, fr := range prior {
			handles[i] = fr.FaceHandle
		}
		if err := ix.Provider.DeleteFaces(ctx, ix.CollectionID, handles); err != nil {
			slog.Warn("delete prior provider faces", "photo", photo.ID, "error", err)
		}
		if err := db.DeleteFaceRecordsByPhoto(ix.DB, photo.ID, provider); err != nil {
			return IndexError, fmt.Errorf("delete prior face records: %w", err)
		}
	}

	detected, err := ix.Provider.IndexFaces(ctx, ix.CollectionID, photo.StorageKey, photo.ID, 1)
	if err != nil {
		return IndexError, fmt.Errorf("provider index: %w", err)
	}
	if len(detected) == 0 {
		return NoFaceDetected, nil
	}

	// Keep the provider's first face; remove any extras it indexed anyway.
	// Which face "wins" a group photo is the provider's ordering, recorded
	// as an open product decision.
	face := detected[0]
	if len(detected) > 1 {
		extras := make([]string, 0, len(detected)-1)
		for _, f := range detected[1:] {
			extras = append(extras, f.Handle)
		}
		if err := ix.Provider.DeleteFaces(ctx, ix.CollectionID, extras); err != nil {
			slog.Warn("delete extra provider faces", "photo", photo.ID, "count", len(extras), "error", err)
		}
	}

	record := &model.FaceRecord{
		ID:         uuid.New().String(),
		PhotoID:    photo.ID,
		Provider:   provider,
		FaceHandle: face.Handle,
		Confidence: face.Confidence,
	}
	if err := db.CreateFaceRecord(ix.DB, record); err != nil {
		return IndexError, fmt.Errorf("create face record: %w", err)
	}

	return Indexed, nil
}

// DeletePhotoFaces removes the photo's faces from the provider collection.
// Local rows cascade with the photo row; this only reconciles the provider
// side and is safe to skip on failure.
func (ix *Indexer) DeletePhotoFaces(ctx context.Context, photoID string) error {
	if ix.Provider == nil {
		return nil
	}
	records, err := db.ListFaceRecordsByPhoto(ix.DB, photoID, ix.Provider.Name())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	handles := make([]string, len(records))
	for i, fr := range records {
		handles[i] = fr.FaceHandle
	}
	return ix.Provider.DeleteFaces(ctx, ix.CollectionID, handles)
}

// ensureCollection checks the provider collection once per process and
// caches the readiness. Concurrent first-callers may both create; the
// provider's idempotent creation makes that race harmless.
func (ix *Indexer) ensureCollection(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.collectionReady {
		return nil
	}
	if err := ix.Provider.EnsureCollection(ctx, ix.CollectionID); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	ix.collectionReady = true
	return nil
}
