package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent rapport configuration stored as
// config.toml in the .rapport/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"     mapstructure:"version"`
	Storage     StorageConfig     `toml:"storage"     mapstructure:"storage"`
	API         APIConfig         `toml:"api"         mapstructure:"api"`
	Client      ClientConfig      `toml:"client"      mapstructure:"client"`
	Embedding   EmbeddingConfig   `toml:"embedding"   mapstructure:"embedding"`
	Completion  CompletionConfig  `toml:"completion"  mapstructure:"completion"`
	Ledger      LedgerConfig      `toml:"ledger"      mapstructure:"ledger"`
	Matching    MatchingConfig    `toml:"matching"    mapstructure:"matching"`
	Recommend   RecommendConfig   `toml:"recommend"   mapstructure:"recommend"`
	EventStream EventStreamConfig `toml:"eventstream" mapstructure:"eventstream"`
}

// StorageConfig selects the system of record and the optional profile cache.
type StorageConfig struct {
	Driver      string        `toml:"driver,omitempty"       mapstructure:"driver"       validate:"oneof=memory sqlite postgres"`
	SQLitePath  string        `toml:"sqlite_path,omitempty"  mapstructure:"sqlite_path"`
	PostgresDSN string        `toml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
	RedisAddr   string        `toml:"redis_addr,omitempty"   mapstructure:"redis_addr"`
	CacheTTL    time.Duration `toml:"cache_ttl,omitempty"    mapstructure:"cache_ttl"    validate:"min=0"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty" mapstructure:"listen" validate:"required"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server (e.g. rapport match, rapport recommend). Values are full URLs
// (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty" mapstructure:"api_target" validate:"required,url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"   mapstructure:"provider"   validate:"oneof=ollama openai"`
	Target     string `toml:"target,omitempty"     mapstructure:"target"     validate:"omitempty,url"`
	Model      string `toml:"model,omitempty"      mapstructure:"model"`
	Dimensions uint   `toml:"dimensions,omitempty" mapstructure:"dimensions" validate:"gt=0"`
	APIKey     string `toml:"api_key,omitempty"    mapstructure:"api_key"`
}

// CompletionConfig holds text-completion provider settings.
type CompletionConfig struct {
	Provider string `toml:"provider,omitempty" mapstructure:"provider" validate:"oneof=openai anthropic ollama"`
	Model    string `toml:"model,omitempty"    mapstructure:"model"`
	BaseURL  string `toml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey   string `toml:"api_key,omitempty"  mapstructure:"api_key"`
}

// LedgerConfig tunes background derivation of conversation summaries.
type LedgerConfig struct {
	Workers           uint          `toml:"workers,omitempty"            mapstructure:"workers"            validate:"gt=0"`
	QueueSize         uint          `toml:"queue_size,omitempty"         mapstructure:"queue_size"         validate:"gt=0"`
	DerivationTimeout time.Duration `toml:"derivation_timeout,omitempty" mapstructure:"derivation_timeout" validate:"min=1s,max=10m"`
	SweepInterval     time.Duration `toml:"sweep_interval,omitempty"     mapstructure:"sweep_interval"     validate:"min=1s"`
}

// MatchingConfig weights the preference match score.
type MatchingConfig struct {
	PreferenceWeight  float64 `toml:"preference_weight"     mapstructure:"preference_weight"  validate:"min=0"`
	DescriptionWeight float64 `toml:"description_weight"    mapstructure:"description_weight" validate:"min=0"`
	MaxResults        int     `toml:"max_results,omitempty" mapstructure:"max_results"        validate:"min=0"`
}

// RecommendConfig weights the friend recommendation confidence score.
type RecommendConfig struct {
	FrequencyWeight     float64       `toml:"frequency_weight"               mapstructure:"frequency_weight"     validate:"min=0"`
	RecencyWeight       float64       `toml:"recency_weight"                 mapstructure:"recency_weight"       validate:"min=0"`
	AffinityWeight      float64       `toml:"affinity_weight"                mapstructure:"affinity_weight"      validate:"min=0"`
	FrequencySaturation float64       `toml:"frequency_saturation,omitempty" mapstructure:"frequency_saturation" validate:"gt=0"`
	RecencyHalfLife     time.Duration `toml:"recency_half_life,omitempty"    mapstructure:"recency_half_life"    validate:"min=1m"`
	MaxResults          int           `toml:"max_results,omitempty"          mapstructure:"max_results"          validate:"min=0"`
	MinConfidence       float64       `toml:"min_confidence"                 mapstructure:"min_confidence"       validate:"min=0,max=1"`
}

// EventStreamConfig selects where change events are published.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty" mapstructure:"provider" validate:"oneof=nop kafka"`
	Brokers  []string `toml:"brokers,omitempty"  mapstructure:"brokers"  validate:"required_if=Provider kafka"`
	Topic    string   `toml:"topic,omitempty"    mapstructure:"topic"    validate:"required_if=Provider kafka"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func intKey(key string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(key string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func durationKey(key string, field func(c *Config) *time.Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return field(c).String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = d
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.redis_addr":   stringKey(func(c *Config) *string { return &c.Storage.RedisAddr }),
	"storage.cache_ttl":    durationKey("storage.cache_ttl", func(c *Config) *time.Duration { return &c.Storage.CacheTTL }),

	"api.listen":        stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":    stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),

	"completion.provider": stringKey(func(c *Config) *string { return &c.Completion.Provider }),
	"completion.model":    stringKey(func(c *Config) *string { return &c.Completion.Model }),
	"completion.base_url": stringKey(func(c *Config) *string { return &c.Completion.BaseURL }),
	"completion.api_key":  stringKey(func(c *Config) *string { return &c.Completion.APIKey }),

	"ledger.workers":            uintKey("ledger.workers", func(c *Config) *uint { return &c.Ledger.Workers }),
	"ledger.queue_size":         uintKey("ledger.queue_size", func(c *Config) *uint { return &c.Ledger.QueueSize }),
	"ledger.derivation_timeout": durationKey("ledger.derivation_timeout", func(c *Config) *time.Duration { return &c.Ledger.DerivationTimeout }),
	"ledger.sweep_interval":     durationKey("ledger.sweep_interval", func(c *Config) *time.Duration { return &c.Ledger.SweepInterval }),

	"matching.preference_weight":  floatKey("matching.preference_weight", func(c *Config) *float64 { return &c.Matching.PreferenceWeight }),
	"matching.description_weight": floatKey("matching.description_weight", func(c *Config) *float64 { return &c.Matching.DescriptionWeight }),
	"matching.max_results":        intKey("matching.max_results", func(c *Config) *int { return &c.Matching.MaxResults }),

	"recommend.frequency_weight":     floatKey("recommend.frequency_weight", func(c *Config) *float64 { return &c.Recommend.FrequencyWeight }),
	"recommend.recency_weight":       floatKey("recommend.recency_weight", func(c *Config) *float64 { return &c.Recommend.RecencyWeight }),
	"recommend.affinity_weight":      floatKey("recommend.affinity_weight", func(c *Config) *float64 { return &c.Recommend.AffinityWeight }),
	"recommend.frequency_saturation": floatKey("recommend.frequency_saturation", func(c *Config) *float64 { return &c.Recommend.FrequencySaturation }),
	"recommend.recency_half_life":    durationKey("recommend.recency_half_life", func(c *Config) *time.Duration { return &c.Recommend.RecencyHalfLife }),
	"recommend.max_results":          intKey("recommend.max_results", func(c *Config) *int { return &c.Recommend.MaxResults }),
	"recommend.min_confidence":       floatKey("recommend.min_confidence", func(c *Config) *float64 { return &c.Recommend.MinConfidence }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
