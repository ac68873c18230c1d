// Package delivery authorizes individual downloads: grant, payment state,
// entitlement coverage, and photo eligibility are each checked in turn, and
// each failure maps to its own denial so callers can tell "pay first" from
// "this item wasn't purchased".
package delivery

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/entitlement"
	"github.com/evhall/fotomatch/internal/errs"
	"github.com/evhall/fotomatch/internal/grant"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/storage"
)

// Distinct denial reasons. Both wrap ErrForbidden; callers that need the
// split check these first.
var (
	ErrNotPaid     = fmt.Errorf("purchase not paid: %w", errs.ErrForbidden)
	ErrNotEntitled = fmt.Errorf("item not covered by purchase: %w", errs.ErrForbidden)
)

type Gate struct {
	DB     *sql.DB
	Grants *grant.Issuer
	Ent    *entitlement.Store
	Signer storage.Signer
}

// BundleItem is one signed URL of a bundle download.
type BundleItem struct {
	PhotoID string
	URL     string
}

// AuthorizeDownload validates the grant against the purchase, requires the
// entitlement to cover the photo, requires the photo to belong to the
// purchase's event and be uploaded, and mints a short-lived retrieval URL.
func (g *Gate) AuthorizeDownload(ctx context.Context, purchaseID, token, photoID string) (string, error) {
	purchase, ent, err := g.authorize(purchaseID, token)
	if err != nil {
		return "", err
	}

	if !ent.Covers(photoID) {
		return "", ErrNotEntitled
	}

	photo, err := db.GetPhoto(g.DB, photoID)
	if err != nil {
		return "", err
	}
	if photo == nil || photo.EventID != purchase.EventID || !photo.Uploaded {
		return "", fmt.Errorf("photo %s: %w", photoID, errs.ErrNotFound)
	}

	return g.mint(ctx, photo)
}

// AuthorizeBundle requires an all-photos entitlement and mints one URL per
// currently published, uploaded photo of the event. Evaluated at request
// time: photos published after the purchase are included.
func (g *Gate) AuthorizeBundle(ctx context.Context, purchaseID, token string) ([]BundleItem, error) {
	purchase, ent, err := g.authorize(purchaseID, token)
	if err != nil {
		return nil, err
	}
	if !ent.HasAllPhotos {
		return nil, ErrNotEntitled
	}

	photos, err := db.ListDeliverablePhotos(g.DB, purchase.EventID)
	if err != nil {
		return nil, err
	}

	items := make([]BundleItem, 0, len(photos))
	for i := range photos {
		url, err := g.mint(ctx, &photos[i])
		if err != nil {
			return nil, err
		}
		items = append(items, BundleItem{PhotoID: photos[i].ID, URL: url})
	}
	return items, nil
}

func (g *Gate) authorize(purchaseID, token string) (*model.Purchase, entitlement.Entitlement, error) {
	if err := g.Grants.Verify(purchaseID, token); err != nil {
		return nil, entitlement.Entitlement{}, err
	}

	purchase, ent, err := g.Ent.Resolve(purchaseID)
	if err != nil {
		if purchase != nil && purchase.PaymentState != model.PaymentPaid {
			return nil, entitlement.Entitlement{}, ErrNotPaid
		}
		return nil, entitlement.Entitlement{}, err
	}
	return purchase, ent, nil
}

func (g *Gate) mint(ctx context.Context, photo *model.Photo) (string, error) {
	if g.Signer == nil {
		return "", fmt.Errorf("storage signer: %w", errs.ErrNotConfigured)
	}
	url, err := g.Signer.MintDownload(ctx, photo.StorageKey, storage.DownloadTTL)
	if err != nil {
		return "", fmt.Errorf("mint download url: %w: %v", errs.ErrUpstream, err)
	}
	return url, nil
}
