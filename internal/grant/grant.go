// Package grant issues and verifies the short-lived bearer credentials that
// gate downloads. A grant only asserts which purchase the holder proved
// ownership of; what that purchase entitles them to is re-derived from the
// store on every use.
package grant

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evhall/fotomatch/internal/errs"
)

const DefaultTTL = 12 * time.Hour

type Issuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewIssuer(signKey []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{signKey: signKey, ttl: ttl, now: time.Now}
}

// Issue creates a signed HS256 token whose subject is the purchase id.
func (i *Issuer) Issue(purchaseID string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   purchaseID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign grant: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and expiry, and that the token's subject equals
// the purchase id from the request path. A grant issued for purchase A is
// never accepted against purchase B, even with a valid signature.
func (i *Issuer) Verify(purchaseID, token string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return fmt.Errorf("grant: %w", errs.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.Subject != purchaseID {
		return fmt.Errorf("grant subject mismatch: %w", errs.ErrUnauthorized)
	}
	return nil
}
