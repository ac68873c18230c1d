package db

import (
	"database/sql"

	"github.com/evhall/fotomatch/internal/model"
)

func CreateEvent(database *sql.DB, e *model.Event) error {
	_, err := database.Exec(
		`INSERT INTO events (id, name, currency, price_single_cents, price_all_cents, publish_key_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Currency, e.PriceSingleCents, e.PriceAllCents, e.PublishKeyHash,
	)
	return err
}

func GetEvent(database *sql.DB, id string) (*model.Event, error) {
	e := &model.Event{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, name, currency, price_single_cents, price_all_cents, publish_key_hash, created_at
		 FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.Currency, &e.PriceSingleCents, &e.PriceAllCents, &e.PublishKeyHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = createdAt.Time
	return e, nil
}
