package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	fotomatch "github.com/evhall/fotomatch"
	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/delivery"
	"github.com/evhall/fotomatch/internal/entitlement"
	"github.com/evhall/fotomatch/internal/faces"
	"github.com/evhall/fotomatch/internal/grant"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/sse"
)

const testPublishKey = "test-publish-key"

func newTestHandler(t *testing.T) (*Handler, *sql.DB, *model.Event) {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, fotomatch.MigrationFS))

	hash, err := bcrypt.GenerateFromPassword([]byte(testPublishKey), bcrypt.MinCost)
	require.NoError(t, err)
	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             "test event",
		Currency:         "eur",
		PriceSingleCents: 500,
		PublishKeyHash:   string(hash),
	}
	require.NoError(t, db.CreateEvent(database, event))

	ent := &entitlement.Store{DB: database}
	grants := grant.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	h := &Handler{
		DB:      database,
		Hub:     sse.New(),
		Ent:     ent,
		Grants:  grants,
		Gate:    &delivery.Gate{DB: database, Grants: grants, Ent: ent, Signer: stubSigner{}},
		Matcher: &faces.Matcher{DB: database, CollectionID: "guests", Threshold: 80},
	}
	return h, database, event
}

// stubSigner mints deterministic URLs so download tests can assert on the key.
type stubSigner struct{}

func (stubSigner) MintUpload(_ context.Context, key, _ string) (string, error) {
	return "https://signed.example/put/" + key, nil
}

func (stubSigner) MintDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example/get/" + key, nil
}

// scriptedProvider returns a fixed search outcome; the index-side methods are
// never reached from these handlers.
type scriptedProvider struct {
	candidates []faces.Candidate
	err        error
}

func (scriptedProvider) Name() string { return "scripted" }

func (scriptedProvider) EnsureCollection(context.Context, string) error { return nil }

func (scriptedProvider) DeleteFaces(context.Context, string, []string) error {
	return nil
}

func (scriptedProvider) IndexFaces(context.Context, string, string, string, int) ([]faces.IndexedFace, error) {
	return nil, nil
}

func (p scriptedProvider) SearchByImage(context.Context, string, []byte, int, float64) ([]faces.Candidate, error) {
	return p.candidates, p.err
}

func seedPublishedPhoto(t *testing.T, database *sql.DB, eventID string) *model.Photo {
	t.Helper()
	p := &model.Photo{
		ID:         uuid.New().String(),
		EventID:    eventID,
		StorageKey: "events/" + eventID + "/" + uuid.New().String() + ".jpg",
		State:      model.PhotoPublished,
		Uploaded:   true,
	}
	require.NoError(t, db.CreatePhoto(database, p))
	return p
}

// paidPurchase creates a paid purchase for the item and returns it with a
// valid access grant.
func paidPurchase(t *testing.T, h *Handler, database *sql.DB, eventID string, item entitlement.ItemSpec) (*model.Purchase, string) {
	t.Helper()
	sessionID := "cs_" + uuid.New().String()
	p, err := h.Ent.CreatePending(eventID, "guest@example.com", sessionID, item, "eur")
	require.NoError(t, err)
	_, err = db.MarkPurchasePaid(database, sessionID, "pi_"+uuid.New().String(), "")
	require.NoError(t, err)
	token, _, err := h.Grants.Issue(p.ID)
	require.NoError(t, err)
	return p, token
}

func denialCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func serveTest(t *testing.T, h *Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	checkoutRL := NewRateLimiter(100, 100)
	t.Cleanup(checkoutRL.Stop)
	searchRL := NewRateLimiter(100, 100)
	t.Cleanup(searchRL.Stop)

	rec := httptest.NewRecorder()
	h.Routes(checkoutRL, searchRL).ServeHTTP(rec, req)
	return rec
}

func TestSessionExchangeIssuesGrant(t *testing.T) {
	h, database, event := newTestHandler(t)

	p, err := h.Ent.CreatePending(event.ID, "a@example.com", "cs_1",
		entitlement.ItemSpec{Kind: model.ItemAllPhotos, AmountCents: 2500}, "eur")
	require.NoError(t, err)
	_, err = db.MarkPurchasePaid(database, "cs_1", "pi_1", "")
	require.NoError(t, err)

	rec := serveTest(t, h, httptest.NewRequest(http.MethodGet, "/sessions/cs_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Purchase struct {
			ID           string `json:"id"`
			PaymentState string `json:"payment_state"`
		} `json:"purchase"`
		AccessGrant string `json:"access_grant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, p.ID, resp.Purchase.ID)
	require.Equal(t, model.PaymentPaid, resp.Purchase.PaymentState)
	require.NoError(t, h.Grants.Verify(p.ID, resp.AccessGrant))
}

func TestSessionExchangePendingConflicts(t *testing.T) {
	h, _, event := newTestHandler(t)

	_, err := h.Ent.CreatePending(event.ID, "a@example.com", "cs_1",
		entitlement.ItemSpec{Kind: model.ItemAllPhotos, AmountCents: 2500}, "eur")
	require.NoError(t, err)

	rec := serveTest(t, h, httptest.NewRequest(http.MethodGet, "/sessions/cs_1", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionExchangeUnknownSession(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := serveTest(t, h, httptest.NewRequest(http.MethodGet, "/sessions/cs_nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequirePublishKey(t *testing.T) {
	h, _, event := newTestHandler(t)
	target := "/events/" + event.ID + "/analytics"

	rec := serveTest(t, h, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec = serveTest(t, h, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/events/"+uuid.New().String()+"/analytics", nil)
	req.Header.Set("Authorization", "Bearer "+testPublishKey)
	rec = serveTest(t, h, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+testPublishKey)
	rec = serveTest(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEventAnalyticsAggregates(t *testing.T) {
	h, database, event := newTestHandler(t)

	_, err := h.Ent.CreatePending(event.ID, "a@example.com", "cs_1",
		entitlement.ItemSpec{Kind: model.ItemAllPhotos, AmountCents: 2500}, "eur")
	require.NoError(t, err)
	_, err = db.MarkPurchasePaid(database, "cs_1", "pi_1", "")
	require.NoError(t, err)

	for _, sim := range []float64{90, 95} {
		s := sim
		require.NoError(t, db.InsertSearchEvent(database, &model.SearchEvent{
			ID: uuid.New().String(), EventID: event.ID, MatchCount: 1, TopSimilarity: &s,
		}))
	}
	require.NoError(t, db.InsertSearchEvent(database, &model.SearchEvent{
		ID: uuid.New().String(), EventID: event.ID, MatchCount: 0,
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/"+event.ID+"/analytics", nil)
	req.Header.Set("Authorization", "Bearer "+testPublishKey)
	rec := serveTest(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp analyticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.PaidPurchases)
	require.Equal(t, int64(2500), resp.RevenueCents)
	require.Equal(t, 3, resp.Searches)
	require.Equal(t, 2, resp.SearchesMatched)
	require.NotNil(t, resp.Similarity)
	require.Equal(t, 2, resp.Similarity.Count)
	require.Equal(t, 92.5, resp.Similarity.Mean)
}

func downloadReq(purchaseID, photoID, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet,
		"/purchases/"+purchaseID+"/download/photo/"+photoID, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestDownloadPhotoMintsURL(t *testing.T) {
	h, database, event := newTestHandler(t)
	photo := seedPublishedPhoto(t, database, event.ID)
	p, token := paidPurchase(t, h, database, event.ID,
		entitlement.ItemSpec{Kind: model.ItemSinglePhoto, PhotoID: &photo.ID, AmountCents: 500})

	rec := serveTest(t, h, downloadReq(p.ID, photo.ID, token))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp downloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, photo.ID, resp.PhotoID)
	require.Equal(t, "https://signed.example/get/"+photo.StorageKey, resp.DownloadURL)
}

func TestDownloadPhotoPendingPurchase(t *testing.T) {
	h, database, event := newTestHandler(t)
	photo := seedPublishedPhoto(t, database, event.ID)

	p, err := h.Ent.CreatePending(event.ID, "guest@example.com", "cs_pending",
		entitlement.ItemSpec{Kind: model.ItemSinglePhoto, PhotoID: &photo.ID, AmountCents: 500}, "eur")
	require.NoError(t, err)
	token, _, err := h.Grants.Issue(p.ID)
	require.NoError(t, err)

	rec := serveTest(t, h, downloadReq(p.ID, photo.ID, token))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "NOT_PAID", denialCode(t, rec))
}

func TestDownloadPhotoNotEntitled(t *testing.T) {
	h, database, event := newTestHandler(t)
	bought := seedPublishedPhoto(t, database, event.ID)
	other := seedPublishedPhoto(t, database, event.ID)
	p, token := paidPurchase(t, h, database, event.ID,
		entitlement.ItemSpec{Kind: model.ItemSinglePhoto, PhotoID: &bought.ID, AmountCents: 500})

	rec := serveTest(t, h, downloadReq(p.ID, other.ID, token))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "NOT_ENTITLED", denialCode(t, rec))
}

func TestDownloadPhotoBadGrant(t *testing.T) {
	h, database, event := newTestHandler(t)
	photo := seedPublishedPhoto(t, database, event.ID)
	p, _ := paidPurchase(t, h, database, event.ID,
		entitlement.ItemSpec{Kind: model.ItemSinglePhoto, PhotoID: &photo.ID, AmountCents: 500})

	rec := serveTest(t, h, downloadReq(p.ID, photo.ID, ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", denialCode(t, rec))

	// A grant issued for a different purchase is rejected before any
	// entitlement lookup.
	otherToken, _, err := h.Grants.Issue(uuid.New().String())
	require.NoError(t, err)
	rec = serveTest(t, h, downloadReq(p.ID, photo.ID, otherToken))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", denialCode(t, rec))
}

func TestDownloadPhotoUnknownPhoto(t *testing.T) {
	h, database, event := newTestHandler(t)
	p, token := paidPurchase(t, h, database, event.ID,
		entitlement.ItemSpec{Kind: model.ItemAllPhotos, AmountCents: 2500})

	rec := serveTest(t, h, downloadReq(p.ID, uuid.New().String(), token))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", denialCode(t, rec))
}

func findMeReq(eventID string) *http.Request {
	return httptest.NewRequest(http.MethodPost,
		"/events/"+eventID+"/find-me", bytes.NewReader([]byte("selfie-bytes")))
}

func TestFindMeNotConfigured(t *testing.T) {
	h, _, event := newTestHandler(t)

	rec := serveTest(t, h, findMeReq(event.ID))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "NOT_CONFIGURED", denialCode(t, rec))
}

func TestFindMeNoFaceDetected(t *testing.T) {
	h, _, event := newTestHandler(t)
	h.Matcher.Provider = scriptedProvider{err: faces.ErrNoFaceInImage}

	rec := serveTest(t, h, findMeReq(event.ID))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "NO_FACE_DETECTED", denialCode(t, rec))
}

func TestFindMeNoMatches(t *testing.T) {
	h, _, event := newTestHandler(t)
	h.Matcher.Provider = scriptedProvider{}

	rec := serveTest(t, h, findMeReq(event.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp findMeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(faces.NoMatches), resp.Status)
	require.Empty(t, resp.Matches)
}

func TestFindMeUpstreamError(t *testing.T) {
	h, _, event := newTestHandler(t)
	h.Matcher.Provider = scriptedProvider{err: errors.New("throttled")}

	rec := serveTest(t, h, findMeReq(event.ID))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "UPSTREAM_ERROR", denialCode(t, rec))
}

func TestFindMeReturnsMatches(t *testing.T) {
	h, database, event := newTestHandler(t)
	photo := seedPublishedPhoto(t, database, event.ID)
	require.NoError(t, db.CreateFaceRecord(database, &model.FaceRecord{
		ID: uuid.New().String(), PhotoID: photo.ID, Provider: "scripted", FaceHandle: "F1",
	}))
	h.Matcher.Provider = scriptedProvider{
		candidates: []faces.Candidate{{Handle: "F1", Similarity: 91.5}},
	}
	h.Matcher.Signer = stubSigner{}

	rec := serveTest(t, h, findMeReq(event.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp findMeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(faces.MatchOK), resp.Status)
	require.Len(t, resp.Matches, 1)
	require.Equal(t, photo.ID, resp.Matches[0].PhotoID)
	require.Equal(t, 91.5, resp.Matches[0].Similarity)
	require.Equal(t, "https://signed.example/get/"+photo.StorageKey, resp.Matches[0].PreviewURL)
}

func TestExtractGrantPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.URL.RawQuery = url.Values{"grant": {"from-query"}}.Encode()
	req.Header.Set("X-Access-Grant", "from-custom")
	require.Equal(t, "from-header", extractGrant(req))

	req.Header.Del("Authorization")
	require.Equal(t, "from-query", extractGrant(req))

	req.URL.RawQuery = ""
	require.Equal(t, "from-custom", extractGrant(req))
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "10.0.0.1", realIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", realIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", realIP(req))
}
