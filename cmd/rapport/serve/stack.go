package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/rapport/api"
	apimcp "github.com/papercomputeco/rapport/api/mcp"
	"github.com/papercomputeco/rapport/pkg/completion"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/credentials"
	"github.com/papercomputeco/rapport/pkg/dotdir"
	"github.com/papercomputeco/rapport/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/rapport/pkg/embeddings/utils"
	"github.com/papercomputeco/rapport/pkg/eventstream"
	"github.com/papercomputeco/rapport/pkg/eventstream/kafka"
	"github.com/papercomputeco/rapport/pkg/eventstream/nop"
	"github.com/papercomputeco/rapport/pkg/evolve"
	"github.com/papercomputeco/rapport/pkg/groups"
	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/ledger/worker"
	"github.com/papercomputeco/rapport/pkg/matching"
	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/storage"
	"github.com/papercomputeco/rapport/pkg/storage/inmemory"
	"github.com/papercomputeco/rapport/pkg/storage/postgres"
	"github.com/papercomputeco/rapport/pkg/storage/rediscache"
	"github.com/papercomputeco/rapport/pkg/storage/sqlite"
)

// stack is every long-lived component behind one running server.
type stack struct {
	server  *api.Server
	closers []func() error
}

// newStack wires the store, capabilities, ledger workers, engines, and the
// API server from cfg. On error everything built so far is closed.
func newStack(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (_ *stack, err error) {
	st := &stack{}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	driver, err := newStorageDriver(ctx, cfg.Storage, configDir, log)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, driver.Close)

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	embeddingCfg := cfg.Embedding
	if embeddingCfg.APIKey, err = creds.Resolve(embeddingCfg.Provider, embeddingCfg.APIKey); err != nil {
		return nil, err
	}
	completionKey, err := creds.Resolve(cfg.Completion.Provider, cfg.Completion.APIKey)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(embeddingCfg, log)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, embedder.Close)

	completer, err := completion.New(completion.Config{
		Provider: cfg.Completion.Provider,
		Model:    cfg.Completion.Model,
		APIKey:   completionKey,
		BaseURL:  cfg.Completion.BaseURL,
		Timeout:  cfg.Ledger.DerivationTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("creating completer: %w", err)
	}

	publisher, err := newPublisher(cfg.EventStream, log)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, publisher.Close)

	led, err := ledger.New(ledger.Config{
		Store:             driver,
		Completer:         completer,
		Embedder:          embedder,
		Publisher:         publisher,
		DerivationTimeout: cfg.Ledger.DerivationTimeout,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	pool, err := worker.NewPool(&worker.Config{
		Recomputer: led,
		NumWorkers: cfg.Ledger.Workers,
		QueueSize:  cfg.Ledger.QueueSize,
		JobTimeout: cfg.Ledger.DerivationTimeout,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	led.SetScheduler(pool)
	st.closers = append(st.closers, func() error {
		pool.Close()
		return nil
	})

	sweeper, err := worker.NewSweeper(worker.SweeperConfig{
		Source:   led,
		Queue:    pool,
		Interval: cfg.Ledger.SweepInterval,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sweeper: %w", err)
	}
	sweeper.Start()
	st.closers = append(st.closers, sweeper.Stop)

	engine, err := evolve.New(evolve.Config{
		Store:     driver,
		Ledger:    led,
		Completer: completer,
		Embedder:  embedder,
		Publisher: publisher,
		Timeout:   cfg.Ledger.DerivationTimeout,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating evolve engine: %w", err)
	}

	ranker, err := matching.New(matching.Config{
		Store:             driver,
		Embedder:          embedder,
		PreferenceWeight:  cfg.Matching.PreferenceWeight,
		DescriptionWeight: cfg.Matching.DescriptionWeight,
		MaxResults:        cfg.Matching.MaxResults,
		Dimensions:        int(cfg.Embedding.Dimensions),
		Timeout:           cfg.Ledger.DerivationTimeout,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ranker: %w", err)
	}

	rec, err := recommend.New(recommend.Config{
		Store:     driver,
		History:   led,
		Completer: completer,
		Weights: recommend.Weights{
			Frequency:  cfg.Recommend.FrequencyWeight,
			Recency:    cfg.Recommend.RecencyWeight,
			Affinity:   cfg.Recommend.AffinityWeight,
			Saturation: cfg.Recommend.FrequencySaturation,
			HalfLife:   cfg.Recommend.RecencyHalfLife,
		},
		MaxResults:    cfg.Recommend.MaxResults,
		MinConfidence: cfg.Recommend.MinConfidence,
		Timeout:       cfg.Ledger.DerivationTimeout,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating recommender: %w", err)
	}

	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Matcher:     ranker,
		Recommender: rec,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	st.server, err = api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Profiles:   driver,
		Groups:     groups.New(driver, log),
		Ledger:     led,
		Evolve:     engine,
		Matching:   ranker,
		Recommend:  rec,
		MCP:        mcpServer.Handler(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return st, nil
}

// Close releases components in reverse construction order.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func newStorageDriver(ctx context.Context, c config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	var (
		driver storage.Driver
		err    error
	)

	switch c.Driver {
	case "memory":
		log.Info("using in-memory storage")
		driver = inmemory.NewDriver()

	case "sqlite", "":
		path := c.SQLitePath
		if path == "" {
			path, err = dotdir.NewManager().SQLitePath(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
		}
		driver, err = sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", path)

	case "postgres":
		driver, err = postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", c.Driver)
	}

	if c.RedisAddr == "" {
		return driver, nil
	}

	cached, err := rediscache.New(ctx, driver, rediscache.Options{
		Addr: c.RedisAddr,
		TTL:  c.CacheTTL,
	}, log)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to connect profile cache: %w", err)
	}
	log.Info("caching profiles in redis", "addr", c.RedisAddr, "ttl", c.CacheTTL)
	return cached, nil
}

func newEmbedder(c config.EmbeddingConfig, log *slog.Logger) (embeddings.Embedder, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.Provider,
		TargetURL:    c.Target,
		Model:        c.Model,
		APIKey:       c.APIKey,
		Dimensions:   int(c.Dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	log.Info("using embedder",
		"provider", c.Provider,
		"model", c.Model,
		"dimensions", c.Dimensions,
	)
	return embedder, nil
}

func newPublisher(c config.EventStreamConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.Brokers,
			Topic:   c.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing events to kafka", "brokers", c.Brokers, "topic", c.Topic)
		return p, nil

	case "nop", "":
		return nop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unsupported event stream provider: %q", c.Provider)
	}
}
