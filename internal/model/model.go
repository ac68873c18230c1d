package model

import "time"

// Photo publication states.
const (
	PhotoDraft     = "draft"
	PhotoPublished = "published"
)

// Purchase payment states.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Purchase item kinds.
const (
	ItemSinglePhoto = "single_photo"
	ItemAllPhotos   = "all_photos"
)

// Job states.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

const JobIndexFaces = "index_faces"

// Event is the owning aggregate for photos and purchases. Event CRUD lives
// outside this service; rows here are read-only.
type Event struct {
	ID               string
	Name             string
	Currency         string
	PriceSingleCents int64
	PriceAllCents    *int64
	PublishKeyHash   string
	CreatedAt        time.Time
}

type Photo struct {
	ID          string
	EventID     string
	StorageKey  string
	State       string
	Uploaded    bool
	CapturedAt  *time.Time
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// Deliverable reports whether the photo may appear in guest-facing results.
func (p *Photo) Deliverable() bool {
	return p.Uploaded && p.State == PhotoPublished
}

// FaceRecord maps a photo to the identity provider's face handle.
// At most one record per photo per provider.
type FaceRecord struct {
	ID         string
	PhotoID    string
	Provider   string
	FaceHandle string
	Confidence *float64
	CreatedAt  time.Time
}

type Purchase struct {
	ID                string
	EventID           string
	BuyerEmail        string
	CheckoutSessionID string
	PaymentID         *string
	PaymentState      string
	PayoutState       string
	TotalCents        int64
	Currency          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PurchaseItem struct {
	ID          string
	PurchaseID  string
	Kind        string
	PhotoID     *string
	AmountCents int64
}

type Job struct {
	ID           string
	JobType      string
	PhotoID      string
	State        string
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type SearchEvent struct {
	ID            string
	EventID       string
	MatchCount    int
	TopSimilarity *float64
	CreatedAt     time.Time
}

type DownloadEvent struct {
	ID         string
	PurchaseID string
	PhotoID    string
	EventID    string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}
