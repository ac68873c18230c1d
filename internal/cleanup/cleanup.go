// Package cleanup prunes rows that only have operational value for a
// limited time: finished index jobs and aged search telemetry.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/evhall/fotomatch/internal/db"
)

type Cleaner struct {
	DB              *sql.DB
	Interval        time.Duration
	TelemetryMaxAge time.Duration
	cancel          context.CancelFunc
	done            chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.runOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *Cleaner) runOnce() {
	if n, err := db.DeleteFinishedJobsBefore(c.DB, time.Now().Add(-24*time.Hour)); err != nil {
		slog.Error("cleanup: delete finished jobs", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: deleted finished jobs", "count", n)
	}

	if c.TelemetryMaxAge > 0 {
		if n, err := db.DeleteSearchEventsBefore(c.DB, time.Now().Add(-c.TelemetryMaxAge)); err != nil {
			slog.Error("cleanup: delete search events", "error", err)
		} else if n > 0 {
			slog.Info("cleanup: deleted search events", "count", n)
		}
	}
}
