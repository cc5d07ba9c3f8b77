package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/rapport/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RAPPORT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RAPPORT_API_LISTEN, RAPPORT_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RAPPORT_API_LISTEN, RAPPORT_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("RAPPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper decodes the resolved settings in v into a validated Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)
	v.SetDefault("storage.cache_ttl", d.Storage.CacheTTL)

	// API and client
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)

	// Completion
	v.SetDefault("completion.provider", d.Completion.Provider)
	v.SetDefault("completion.model", d.Completion.Model)
	v.SetDefault("completion.base_url", d.Completion.BaseURL)
	v.SetDefault("completion.api_key", d.Completion.APIKey)

	// Ledger
	v.SetDefault("ledger.workers", d.Ledger.Workers)
	v.SetDefault("ledger.queue_size", d.Ledger.QueueSize)
	v.SetDefault("ledger.derivation_timeout", d.Ledger.DerivationTimeout)
	v.SetDefault("ledger.sweep_interval", d.Ledger.SweepInterval)

	// Matching
	v.SetDefault("matching.preference_weight", d.Matching.PreferenceWeight)
	v.SetDefault("matching.description_weight", d.Matching.DescriptionWeight)
	v.SetDefault("matching.max_results", d.Matching.MaxResults)

	// Recommend
	v.SetDefault("recommend.frequency_weight", d.Recommend.FrequencyWeight)
	v.SetDefault("recommend.recency_weight", d.Recommend.RecencyWeight)
	v.SetDefault("recommend.affinity_weight", d.Recommend.AffinityWeight)
	v.SetDefault("recommend.frequency_saturation", d.Recommend.FrequencySaturation)
	v.SetDefault("recommend.recency_half_life", d.Recommend.RecencyHalfLife)
	v.SetDefault("recommend.max_results", d.Recommend.MaxResults)
	v.SetDefault("recommend.min_confidence", d.Recommend.MinConfidence)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}
