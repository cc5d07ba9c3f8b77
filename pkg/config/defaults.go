package config

import "time"

const (
	defaultStorageDriver = "sqlite"
	defaultCacheTTL      = 5 * time.Minute

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultCompletionProvider = "ollama"
	defaultCompletionModel    = "llama3.2"

	defaultLedgerWorkers     = 3
	defaultLedgerQueueSize   = 256
	defaultDerivationTimeout = 30 * time.Second
	defaultSweepInterval     = time.Minute

	defaultPreferenceWeight  = 0.5
	defaultDescriptionWeight = 0.5
	defaultMatchMaxResults   = 20

	defaultFrequencyWeight     = 0.3
	defaultRecencyWeight       = 0.3
	defaultAffinityWeight      = 0.4
	defaultFrequencySaturation = 10
	defaultRecencyHalfLife     = 14 * 24 * time.Hour
	defaultRecommendMaxResults = 5

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "rapport.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:   defaultStorageDriver,
			CacheTTL: defaultCacheTTL,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Completion: CompletionConfig{
			Provider: defaultCompletionProvider,
			Model:    defaultCompletionModel,
		},
		Ledger: LedgerConfig{
			Workers:           defaultLedgerWorkers,
			QueueSize:         defaultLedgerQueueSize,
			DerivationTimeout: defaultDerivationTimeout,
			SweepInterval:     defaultSweepInterval,
		},
		Matching: MatchingConfig{
			PreferenceWeight:  defaultPreferenceWeight,
			DescriptionWeight: defaultDescriptionWeight,
			MaxResults:        defaultMatchMaxResults,
		},
		Recommend: RecommendConfig{
			FrequencyWeight:     defaultFrequencyWeight,
			RecencyWeight:       defaultRecencyWeight,
			AffinityWeight:      defaultAffinityWeight,
			FrequencySaturation: defaultFrequencySaturation,
			RecencyHalfLife:     defaultRecencyHalfLife,
			MaxResults:          defaultRecommendMaxResults,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
