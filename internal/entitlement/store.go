// Package entitlement tracks purchase payment state and derives what a paid
// purchase authorizes for download.
package entitlement

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/errs"
	"github.com/evhall/fotomatch/internal/model"
)

// Store is the durable record of purchases and their lifecycle.
type Store struct {
	DB *sql.DB
}

// ItemSpec describes the single line item of a new purchase.
type ItemSpec struct {
	Kind        string
	PhotoID     *string
	AmountCents int64
}

// CreatePending records a purchase in pending state at checkout-session
// creation time. A reused session id is a Conflict, never silently retried.
func (s *Store) CreatePending(eventID, buyerEmail, sessionID string, item ItemSpec, currency string) (*model.Purchase, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id: %w", errs.ErrValidation)
	}

	p := &model.Purchase{
		ID:                uuid.New().String(),
		EventID:           eventID,
		BuyerEmail:        buyerEmail,
		CheckoutSessionID: sessionID,
		PaymentState:      model.PaymentPending,
		TotalCents:        item.AmountCents,
		Currency:          currency,
	}
	items := []model.PurchaseItem{{
		ID:          uuid.New().String(),
		PurchaseID:  p.ID,
		Kind:        item.Kind,
		PhotoID:     item.PhotoID,
		AmountCents: item.AmountCents,
	}}
	if err := db.CreatePurchase(s.DB, p, items); err != nil {
		return nil, err
	}
	return p, nil
}

// ReconcileSucceeded applies a successful payment notification. Idempotent
// under at-least-once delivery: a replay that finds no pending purchase is
// a silent no-op. Returns the purchase (for side effects) and whether this
// call applied the transition.
func (s *Store) ReconcileSucceeded(sessionID, paymentID, verifiedEmail string) (*model.Purchase, bool, error) {
	applied, err := db.MarkPurchasePaid(s.DB, sessionID, paymentID, verifiedEmail)
	if err != nil {
		return nil, false, fmt.Errorf("mark paid: %w", err)
	}
	p, err := db.GetPurchaseBySession(s.DB, sessionID)
	if err != nil {
		return nil, applied, err
	}
	return p, applied, nil
}

// ReconcileFailed applies a failed payment notification. Only a pending
// purchase transitions; a purchase already confirmed paid is never
// downgraded by a stale or duplicate failure.
func (s *Store) ReconcileFailed(sessionID string) (bool, error) {
	applied, err := db.MarkPurchaseFailed(s.DB, sessionID)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return applied, nil
}

// Entitlement is the derived download authorization of one paid purchase.
// All-photos coverage is evaluated dynamically against currently published
// photos, never snapshotted at purchase time.
type Entitlement struct {
	HasAllPhotos bool
	PhotoIDs     map[string]struct{}
}

// Covers reports whether the entitlement includes the photo.
func (e Entitlement) Covers(photoID string) bool {
	if e.HasAllPhotos {
		return true
	}
	_, ok := e.PhotoIDs[photoID]
	return ok
}

// Resolve derives the entitlement of a purchase. The purchase must exist
// and be paid; payment state is re-checked here on every use rather than
// trusted from any credential.
func (s *Store) Resolve(purchaseID string) (*model.Purchase, Entitlement, error) {
	p, err := db.GetPurchase(s.DB, purchaseID)
	if err != nil {
		return nil, Entitlement{}, err
	}
	if p == nil {
		return nil, Entitlement{}, fmt.Errorf("purchase %s: %w", purchaseID, errs.ErrNotFound)
	}
	if p.PaymentState != model.PaymentPaid {
		return p, Entitlement{}, fmt.Errorf("purchase %s is %s: %w", purchaseID, p.PaymentState, errs.ErrForbidden)
	}

	items, err := db.ListPurchaseItems(s.DB, purchaseID)
	if err != nil {
		return p, Entitlement{}, err
	}

	ent := Entitlement{PhotoIDs: make(map[string]struct{})}
	for _, item := range items {
		if item.Kind == model.ItemAllPhotos {
			ent.HasAllPhotos = true
		}
		if item.PhotoID != nil {
			ent.PhotoIDs[*item.PhotoID] = struct{}{}
		}
	}
	return p, ent, nil
}
