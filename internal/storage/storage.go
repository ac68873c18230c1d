// Package storage mints the time-limited signed URLs through which all
// photo bytes enter and leave the system. Originals never pass through this
// process.
package storage

import (
	"context"
	"time"
)

// TTLs for minted URLs. Downloads are short-lived; previews back gallery
// and search results and get a longer window.
const (
	DownloadTTL = 600 * time.Second
	PreviewTTL  = time.Hour
)

type Signer interface {
	MintUpload(ctx context.Context, key, contentType string) (string, error)
	MintDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}
