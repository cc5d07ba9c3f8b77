package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/papercomputeco/rapport/pkg/social"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
	sweepJobName          = "ledger-stale-sweep"
)

// StaleSource lists interactions whose derivation is outstanding.
type StaleSource interface {
	Stale(ctx context.Context, limit int) ([]*social.Interaction, error)
}

// Enqueuer accepts interaction ids for derivation.
type Enqueuer interface {
	Enqueue(interactionID string) bool
}

// SweeperConfig is the configuration for a Sweeper.
type SweeperConfig struct {
	Source StaleSource
	Queue  Enqueuer

	// Interval between sweeps (defaults to one minute).
	Interval time.Duration

	// BatchSize caps the ids queued per sweep (defaults to 100).
	BatchSize int

	Logger *slog.Logger
}

// Sweeper periodically re-queues stale interactions so that failed or
// dropped derivations are retried.
type Sweeper struct {
	config    SweeperConfig
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper and registers its job. Call Start to begin
// sweeping.
func NewSweeper(c SweeperConfig) (*Sweeper, error) {
	if c.Source == nil || c.Queue == nil {
		return nil, errors.New("sweeper requires a source and a queue")
	}
	if c.Interval <= 0 {
		c.Interval = defaultSweepInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultSweepBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(c.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	sw := &Sweeper{
		config:    c,
		scheduler: s,
		logger:    c.Logger,
	}

	_, err = s.NewJob(
		gocron.DurationJob(c.Interval),
		gocron.NewTask(func() {
			if _, err := sw.Sweep(context.Background()); err != nil {
				sw.logger.Error("stale sweep failed", "error", err)
			}
		}),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule job %s: %w", sweepJobName, err)
	}

	return sw, nil
}

// Start begins running sweeps on the configured interval.
func (s *Sweeper) Start() {
	s.scheduler.Start()
	s.logger.Debug("sweeper started", "interval", s.config.Interval)
}

// Sweep queues one batch of stale interactions and returns how many were
// accepted by the queue.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.config.Source.Stale(ctx, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing stale interactions: %w", err)
	}

	queued := 0
	for _, rec := range stale {
		if s.config.Queue.Enqueue(rec.ID) {
			queued++
		}
	}

	if len(stale) > 0 {
		s.logger.Info("stale interactions queued",
			"found", len(stale),
			"queued", queued,
		)
	}
	return queued, nil
}

// Stop shuts down the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
