// Package audit is the decision trail pipeline. Enforcement emits one event
// per gated tool call; the recorder queues them in memory and background
// workers batch them into storage, so the hot path never waits on the
// database. When the queue is full the oldest events are shed first: recent
// history is worth more than a complete one under pressure.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vantagesec/mcpwarden/internal/config"
	"github.com/vantagesec/mcpwarden/internal/database/repositories"
	"github.com/vantagesec/mcpwarden/internal/metrics"
	"github.com/vantagesec/mcpwarden/internal/models"
)

const (
	defaultQueueSize = 4096
	defaultWorkers   = 2

	// writerBatchSize bounds one storage write; writerFlushInterval bounds
	// how stale a buffered event can get on a quiet queue.
	writerBatchSize     = 64
	writerFlushInterval = time.Second
	writerTimeout       = 10 * time.Second
)

// Recorder accepts audit events without blocking and persists them in the
// background. It also fans events out to the live-tail hub when one is
// attached.
type Recorder struct {
	repo  repositories.AuditRepository
	hub   *Hub
	log   *logrus.Logger
	queue chan *models.AuditEvent
	done  chan struct{}
	wg    sync.WaitGroup

	closed atomic.Bool
}

// NewRecorder starts the writer workers and returns a ready recorder. The
// hub may be nil when live streaming is not wired.
func NewRecorder(repo repositories.AuditRepository, hub *Hub, cfg *config.Config, log *logrus.Logger) *Recorder {
	queueSize := cfg.Audit.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := cfg.Audit.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	r := &Recorder{
		repo:  repo,
		hub:   hub,
		log:   log,
		queue: make(chan *models.AuditEvent, queueSize),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	log.WithFields(logrus.Fields{
		"queue_size": queueSize,
		"workers":    workers,
	}).Info("Audit recorder started")
	return r
}

// Record enqueues one event, fire and forget. Missing id and timestamp are
// filled in. On a full queue the oldest queued event is dropped to make room;
// the caller is never blocked and never sees an error.
func (r *Recorder) Record(event *models.AuditEvent) {
	if event == nil || r.closed.Load() {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if r.hub != nil {
		r.hub.Broadcast(event)
	}

	for {
		select {
		case r.queue <- event:
			metrics.SetAuditQueueDepth(len(r.queue))
			return
		default:
		}
		select {
		case <-r.queue:
			metrics.RecordAuditDrop()
			r.log.Warn("Audit queue full, dropped oldest event")
		default:
		}
	}
}

// Query returns one page of stored events matching the filter, newest first.
func (r *Recorder) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int64, error) {
	return r.repo.Query(ctx, filter)
}

// Stats aggregates stored events over the filter window.
func (r *Recorder) Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error) {
	return r.repo.Stats(ctx, filter)
}

// Close stops accepting events, drains the queue to storage, and waits for
// the workers to finish. Safe to call more than once.
func (r *Recorder) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	close(r.done)
	r.wg.Wait()
	r.log.Info("Audit recorder stopped")
}

// worker batches queued events into storage until Close, then drains what is
// left.
func (r *Recorder) worker() {
	defer r.wg.Done()

	ticker := time.NewTicker(writerFlushInterval)
	defer ticker.Stop()

	batch := make([]*models.AuditEvent, 0, writerBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writerTimeout)
		if err := r.repo.Insert(ctx, batch); err != nil {
			r.log.WithError(err).WithField("events", len(batch)).Error("Failed to persist audit events")
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case event := <-r.queue:
			batch = append(batch, event)
			metrics.SetAuditQueueDepth(len(r.queue))
			if len(batch) >= writerBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case event := <-r.queue:
					batch = append(batch, event)
					if len(batch) >= writerBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
