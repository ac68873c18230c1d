package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/evhall/fotomatch/internal/errs"
	"github.com/evhall/fotomatch/internal/model"
)

// CreatePurchase inserts the purchase and its items in one transaction.
// A reused checkout session id surfaces as errs.ErrConflict.
func CreatePurchase(database *sql.DB, p *model.Purchase, items []model.PurchaseItem) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO purchases (id, event_id, buyer_email, checkout_session_id, payment_state, total_cents, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.BuyerEmail, p.CheckoutSessionID, p.PaymentState, p.TotalCents, p.Currency,
	)
	if err != nil {
		tx.Rollback()
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("checkout session %s: %w", p.CheckoutSessionID, errs.ErrConflict)
		}
		return err
	}

	for _, item := range items {
		if _, err := tx.Exec(
			`INSERT INTO purchase_items (id, purchase_id, kind, photo_id, amount_cents)
			 VALUES (?, ?, ?, ?, ?)`,
			item.ID, p.ID, item.Kind, item.PhotoID, item.AmountCents,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func GetPurchase(database *sql.DB, id string) (*model.Purchase, error) {
	return scanPurchase(database.QueryRow(
		`SELECT id, event_id, buyer_email, checkout_session_id, payment_id, payment_state,
		        payout_state, total_cents, currency, created_at, updated_at
		 FROM purchases WHERE id = ?`, id,
	))
}

func GetPurchaseBySession(database *sql.DB, sessionID string) (*model.Purchase, error) {
	return scanPurchase(database.QueryRow(
		`SELECT id, event_id, buyer_email, checkout_session_id, payment_id, payment_state,
		        payout_state, total_cents, currency, created_at, updated_at
		 FROM purchases WHERE checkout_session_id = ?`, sessionID,
	))
}

func scanPurchase(row *sql.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	var createdAt, updatedAt SQLiteTime
	err := row.Scan(&p.ID, &p.EventID, &p.BuyerEmail, &p.CheckoutSessionID, &p.PaymentID,
		&p.PaymentState, &p.PayoutState, &p.TotalCents, &p.Currency, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return p, nil
}

// MarkPurchasePaid transitions a pending purchase to paid, stamping the
// external payment id and a verified buyer email when the provider supplied
// one. The state check makes duplicate webhook deliveries no-ops.
func MarkPurchasePaid(database *sql.DB, sessionID, paymentID, verifiedEmail string) (bool, error) {
	res, err := database.Exec(
		`UPDATE purchases
		 SET payment_state = ?,
		     payment_id = ?,
		     buyer_email = CASE WHEN ? != '' THEN ? ELSE buyer_email END,
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE checkout_session_id = ? AND payment_state = ?`,
		model.PaymentPaid, paymentID, verifiedEmail, verifiedEmail, sessionID, model.PaymentPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkPurchaseFailed transitions a pending purchase to failed. A purchase
// already confirmed paid is never downgraded by a stale failure notification.
func MarkPurchaseFailed(database *sql.DB, sessionID string) (bool, error) {
	res, err := database.Exec(
		`UPDATE purchases
		 SET payment_state = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE checkout_session_id = ? AND payment_state = ?`,
		model.PaymentFailed, sessionID, model.PaymentPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func ListPurchaseItems(database *sql.DB, purchaseID string) ([]model.PurchaseItem, error) {
	rows, err := database.Query(
		`SELECT id, purchase_id, kind, photo_id, amount_cents
		 FROM purchase_items WHERE purchase_id = ?`, purchaseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.PurchaseItem
	for rows.Next() {
		var item model.PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.Kind, &item.PhotoID, &item.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
