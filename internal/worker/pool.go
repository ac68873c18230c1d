// Package worker runs the asynchronous face-indexing queue. Upload
// completion enqueues a job; the pool drains the jobs table and reports
// results on the realtime hub.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evhall/fotomatch/internal/db"
	"github.com/evhall/fotomatch/internal/faces"
	"github.com/evhall/fotomatch/internal/model"
	"github.com/evhall/fotomatch/internal/sse"
)

type Pool struct {
	database *sql.DB
	indexer  *faces.Indexer
	hub      *sse.Hub
	workers  int
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPool(database *sql.DB, indexer *faces.Indexer, hub *sse.Hub, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{database: database, indexer: indexer, hub: hub, workers: workers}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.workers)
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := db.ClaimNextJob(p.database)
		if err != nil {
			slog.Error("claim job", "worker", id, "error", err)
			sleep(ctx, 2*time.Second)
			continue
		}
		if job == nil {
			sleep(ctx, 2*time.Second)
			continue
		}

		slog.Info("processing job", "worker", id, "job", job.ID, "type", job.JobType)

		var processErr error
		switch job.JobType {
		case model.JobIndexFaces:
			processErr = p.processIndexJob(ctx, job)
		default:
			processErr = fmt.Errorf("unknown job type %q", job.JobType)
		}

		if processErr != nil {
			slog.Error("job failed", "job", job.ID, "error", processErr)
			db.FailJob(p.database, job.ID, processErr.Error())
		} else {
			db.CompleteJob(p.database, job.ID)
			slog.Info("job completed", "job", job.ID)
		}
	}
}

func (p *Pool) processIndexJob(ctx context.Context, job *model.Job) error {
	photo, err := db.GetPhoto(p.database, job.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", job.PhotoID, err)
	}
	if photo == nil {
		// photo deleted between enqueue and claim; nothing to index
		return nil
	}
	if !photo.Uploaded {
		return fmt.Errorf("photo %s not uploaded", photo.ID)
	}

	status, err := p.indexer.Index(ctx, photo)
	switch status {
	case faces.IndexError:
		return err
	case faces.IndexDisabled:
		slog.Info("face indexing disabled, skipping", "photo", photo.ID)
		return nil
	case faces.NoFaceDetected:
		slog.Info("no face detected", "photo", photo.ID)
	}

	p.hub.Publish(photo.EventID, sse.Update{
		Type:    sse.PhotoIndexed,
		EventID: photo.EventID,
		PhotoID: photo.ID,
	})
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
