package faces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/storage"
)

// Match outcomes.
type MatchStatus string

const (
	MatchOK       MatchStatus = "ok"
	NoMatches     MatchStatus = "no_matches"
	SelfieNoFace  MatchStatus = "no_face_detected"
	MatchDisabled MatchStatus = "disabled"
	MatchError    MatchStatus = "error"
)

// Provider-side candidate ceiling per search.
const maxProviderCandidates = 50

// MaxLimit bounds the caller-supplied result limit.
const MaxLimit = 50

// Match is one candidate photo with the best similarity that explains it.
type Match struct {
	Photo      model.Photo
	Similarity float64
	PreviewURL string
}

// Matcher ranks an event's published photos against a selfie. It is a pure
// read path: no entity is created or mutated here.
type Matcher struct {
	DB           *sql.DB
	Provider     Provider
	Signer       storage.Signer
	CollectionID string
	Threshold    float64
}

// ClampThreshold normalises a configured similarity threshold into [0,100].
func ClampThreshold(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 100 {
		return 100
	}
	return t
}

// Match searches the provider collection with the selfie and resolves the
// surviving handles to the event's deliverable photos, ranked by best
// similarity. no_face_detected means the selfie itself had no usable face;
// no_matches means it had one but nothing scored above threshold.
func (m *Matcher) Match(ctx context.Context, eventID string, selfie []byte, limit int) (MatchStatus, []Match, error) {
	if m.Provider == nil {
		return MatchDisabled, nil, nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	candidates, err := m.Provider.SearchByImage(ctx, m.CollectionID, selfie, maxProviderCandidates, ClampThreshold(m.Threshold))
	if err != nil {
		if errors.Is(err, ErrNoFaceInImage) {
			return SelfieNoFace, nil, nil
		}
		return MatchError, nil, fmt.Errorf("provider search: %w", err)
	}
	if len(candidates) == 0 {
		return NoMatches, nil, nil
	}

	// Deduplicate by handle, keeping the maximum reported similarity:
	// the provider may return the same handle across internal passes.
	bestByHandle := make(map[string]float64, len(candidates))
	handles := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if prev, seen := bestByHandle[c.Handle]; !seen {
			bestByHandle[c.Handle] = c.Similarity
			handles = append(handles, c.Handle)
		} else if c.Similarity > prev {
			bestByHandle[c.Handle] = c.Similarity
		}
	}

	resolved, err := db.ResolveFaceHandles(m.DB, eventID, m.Provider.Name(), handles)
	if err != nil {
		return MatchError, nil, fmt.Errorf("resolve face handles: %w", err)
	}
	if len(resolved) == 0 {
		return NoMatches, nil, nil
	}

	// Aggregate per photo, keeping the highest similarity seen. Multiple
	// handles mapping to one photo only happens in degenerate data; the
	// best explanation wins.
	bestByPhoto := make(map[string]Match, len(resolved))
	for _, r := range resolved {
		sim := bestByHandle[r.FaceHandle]
		if prev, seen := bestByPhoto[r.Photo.ID]; !seen || sim > prev.Similarity {
			bestByPhoto[r.Photo.ID] = Match{Photo: r.Photo, Similarity: sim}
		}
	}

	matches := make([]Match, 0, len(bestByPhoto))
	for _, match := range bestByPhoto {
		matches = append(matches, match)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Photo.ID < matches[j].Photo.ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	// Previews are best-effort: a signing fault degrades the result, it
	// does not fail the search.
	if m.Signer != nil {
		for i := range matches {
			url, err := m.Signer.MintDownload(ctx, matches[i].Photo.StorageKey, storage.PreviewTTL)
			if err != nil {
				slog.Warn("mint preview url", "photo", matches[i].Photo.ID, "error", err)
				continue
			}
			matches[i].PreviewURL = url
		}
	}

	return MatchOK, matches, nil
}
