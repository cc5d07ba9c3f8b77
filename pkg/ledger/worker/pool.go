// Package worker provides an asynchronous worker pool that derives
// conversation summaries and embeddings off the request path, and a sweeper
// that re-queues interactions whose derivation is still outstanding.
//
// The pool decouples the completion and embedding round trips from chat
// requests so that appending a turn stays a single store write.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/rapport/pkg/social"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 2 * time.Minute
)

// Recomputer derives the summary and embedding of one interaction.
type Recomputer interface {
	Recompute(ctx context.Context, interactionID string) (*social.Interaction, error)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Recomputer runs the derivation for each queued id.
	Recomputer Recomputer

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds one job including store round trips.
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes derivation jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan string
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	// pending holds ids queued but not yet picked up, so that a burst of
	// turns on one pair queues a single job.
	pending sync.Map
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Recomputer == nil {
		return nil, errors.New("worker pool requires a Recomputer")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan string, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an interaction id for derivation.
// Returns true if enqueued or already pending, false if the queue is full or
// the pool is closed, resulting in the job being dropped.
func (p *Pool) Enqueue(interactionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "interaction_id", interactionID)
		return false
	}

	if _, loaded := p.pending.LoadOrStore(interactionID, struct{}{}); loaded {
		p.logger.Debug("job already pending", "interaction_id", interactionID)
		return true
	}

	select {
	case p.queue <- interactionID:
		p.logger.Debug("job queued", "interaction_id", interactionID)
		return true
	default:
		p.pending.Delete(interactionID)
		p.logger.Error("job not queued, queue full, job dropped", "interaction_id", interactionID)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for interactionID := range p.queue {
		p.pending.Delete(interactionID)
		p.processJob(interactionID)
	}

	p.logger.Debug("derivation worker stopped", "worker_id", id)
}

// processJob derives one interaction. Failures are logged and left for the
// sweeper to retry.
func (p *Pool) processJob(interactionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	rec, err := p.config.Recomputer.Recompute(ctx, interactionID)
	if err != nil {
		p.logger.Error("async derivation failed",
			"interaction_id", interactionID,
			"retryable", errors.Is(err, social.ErrDerivationFailed),
			"error", err,
		)
		return
	}

	p.logger.Info("interaction derived",
		"interaction_id", rec.ID,
		"derived_turns", rec.DerivedTurns,
	)
}
