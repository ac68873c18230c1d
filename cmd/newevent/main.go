// Command newevent provisions an event row and prints its id together with
// the only plaintext copy of the publish key. The key is bcrypt-hashed at
// rest; lose it and the only recovery is provisioning a new one.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	fotomatch "github.com/evhall/fotomatch"
	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/model"
)

func main() {
	dataDir := flag.String("data", "./data", "data directory of the server")
	name := flag.String("name", "", "event name (required)")
	currency := flag.String("currency", "eur", "ISO currency code for prices")
	priceSingle := flag.Int64("price-single", 0, "price of one photo in cents (required)")
	priceAll := flag.Int64("price-all", 0, "price of the full bundle in cents, 0 disables bundle sales")
	flag.Parse()

	if *name == "" || *priceSingle <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dataDir, *name, *currency, *priceSingle, *priceAll); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(dataDir, name, currency string, priceSingle, priceAll int64) error {
	database, err := db.Open(dataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, fotomatch.MigrationFS); err != nil {
		return err
	}

	key, err := generateKey()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             name,
		Currency:         currency,
		PriceSingleCents: priceSingle,
		PublishKeyHash:   string(hash),
	}
	if priceAll > 0 {
		event.PriceAllCents = &priceAll
	}
	if err := db.CreateEvent(database, event); err != nil {
		return err
	}

	fmt.Printf("event id:    %s\n", event.ID)
	fmt.Printf("publish key: %s\n", key)
	return nil
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
