package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	fotomatch "github.com/evhall/fotomatch"
	"github.com/evhall/fotomatch/internal/cleanup"
	"github.com/evhall/fotomatch/internal/config"
	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/delivery"
	"github.com/evhall/fotomatch/internal/email"
	"github.com/evhall/fotomatch/internal/entitlement"
	"github.com/evhall/fotomatch/internal/faces"
	"github.com/evhall/fotomatch/internal/grant"
	"github.com/evhall/fotomatch/internal/handler"
	"github.com/evhall/fotomatch/internal/payment"
	"github.com/evhall/fotomatch/internal/sse"
	"github.com/evhall/fotomatch/internal/storage"
	"github.com/evhall/fotomatch/internal/webhook"
	"github.com/evhall/fotomatch/internal/worker"
)

func Run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database, fotomatch.MigrationFS); err != nil {
		return err
	}
	slog.Info("database ready")

	// AWS-backed integrations. Both the face provider and the URL signer
	// stay nil until credentials are configured; dependent endpoints answer
	// with NOT_CONFIGURED instead.
	var faceProvider faces.Provider
	var signer storage.Signer
	if cfg.FacesConfigured() {
		rek, err := faces.NewRekognitionProvider(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			return err
		}
		faceProvider = rek

		s3Signer, err := storage.NewS3Signer(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			return err
		}
		signer = s3Signer
		slog.Info("face matching enabled", "provider", rek.Name(), "collection", cfg.FaceCollectionID)
	} else {
		slog.Warn("face matching disabled, AWS_REGION and S3_BUCKET not set")
	}

	// Payment provider
	var payments payment.Provider
	if cfg.PaymentsConfigured() {
		payments = payment.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
		slog.Info("payments enabled")
	} else {
		slog.Warn("payments disabled, STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET not set")
	}

	// Init email mailer
	mailer := &email.Mailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	if mailer.Enabled() {
		slog.Info("email enabled", "host", cfg.SMTPHost, "from", cfg.SMTPFrom)
	}

	// Init photographer notification dispatcher
	notifier := &webhook.Dispatcher{
		URL:    cfg.NotifyWebhookURL,
		Secret: cfg.NotifyWebhookSecret,
	}
	if notifier.Enabled() {
		slog.Info("notifications enabled", "url", cfg.NotifyWebhookURL)
	}

	// Create SSE hub for real-time updates
	sseHub := sse.New()

	indexer := &faces.Indexer{
		DB:           database,
		Provider:     faceProvider,
		CollectionID: cfg.FaceCollectionID,
	}
	matcher := &faces.Matcher{
		DB:           database,
		Provider:     faceProvider,
		Signer:       signer,
		CollectionID: cfg.FaceCollectionID,
		Threshold:    faces.ClampThreshold(cfg.FaceMatchThreshold),
	}

	grants := grant.NewIssuer([]byte(cfg.GrantSecret), cfg.GrantTTL)
	ent := &entitlement.Store{DB: database}
	gate := &delivery.Gate{
		DB:     database,
		Grants: grants,
		Ent:    ent,
		Signer: signer,
	}

	// Start worker pool for face indexing jobs
	pool := worker.NewPool(database, indexer, sseHub, cfg.WorkerCount)
	pool.Start(ctx)
	defer pool.Stop()

	// Start cleanup scheduler
	cleaner := &cleanup.Cleaner{
		DB:              database,
		Interval:        time.Duration(cfg.CleanupIntervalMins) * time.Minute,
		TelemetryMaxAge: time.Duration(cfg.TelemetryRetainDays) * 24 * time.Hour,
	}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// Rate limiters: checkout 10/minute, selfie search 6/minute per IP
	checkoutRL := handler.NewRateLimiter(10.0/60.0, 10)
	defer checkoutRL.Stop()
	searchRL := handler.NewRateLimiter(6.0/60.0, 6)
	defer searchRL.Stop()

	// Build handler and routes
	h := &handler.Handler{
		DB:       database,
		Cfg:      cfg,
		Hub:      sseHub,
		Matcher:  matcher,
		Indexer:  indexer,
		Gate:     gate,
		Ent:      ent,
		Grants:   grants,
		Signer:   signer,
		Payments: payments,
		Mailer:   mailer,
		Webhook:  notifier,
	}
	router := h.Routes(checkoutRL, searchRL)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		srv.Shutdown(context.Background())
	}()

	slog.Info("server starting", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
