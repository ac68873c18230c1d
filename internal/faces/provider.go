// Package faces holds the identity-matching core: indexing one face per
// photo into the provider's collection and matching selfies against it.
package faces

import (
	"context"
	"errors"
)

// ErrNoFaceInImage is returned by SearchByImage when the query image itself
// contains no usable face. Callers surface this differently from an empty
// match list.
var ErrNoFaceInImage = errors.New("no face in image")

// IndexedFace is one face the provider indexed from a photo.
type IndexedFace struct {
	Handle     string
	Confidence *float64
}

// Candidate is one provider-side search hit. A provider may return the same
// handle more than once across internal passes.
type Candidate struct {
	Handle     string
	Similarity float64
}

// Provider is the opaque identity-match capability.
type Provider interface {
	// Name identifies the provider in stored face records.
	Name() string
	// EnsureCollection creates the face collection if it does not exist.
	// Creation is idempotent; concurrent first-callers racing is harmless.
	EnsureCollection(ctx context.Context, collectionID string) error
	// IndexFaces submits the stored photo image, requesting at most
	// maxFaces detections.
	IndexFaces(ctx context.Context, collectionID, storageKey, externalID string, maxFaces int) ([]IndexedFace, error)
	DeleteFaces(ctx context.Context, collectionID string, handles []string) error
	// SearchByImage finds collection faces similar to the supplied image,
	// up to maxCandidates at or above minSimilarity (0-100).
	SearchByImage(ctx context.Context, collectionID string, image []byte, maxCandidates int, minSimilarity float64) ([]Candidate, error)
}
