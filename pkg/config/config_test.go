package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())
	}

	load := func() (*config.Config, error) {
		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		return c.LoadConfig()
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file", func() {
			writeConfig(`version = 0

[storage]
driver = "memory"

[completion]
provider = "anthropic"

[embedding]
dimensions = 384
`)

			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Version).To(Equal(0))
			Expect(cfg.Storage.Driver).To(Equal("memory"))
			Expect(cfg.Completion.Provider).To(Equal("anthropic"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(384)))
		})

		It("loads all config fields", func() {
			writeConfig(`version = 0

[storage]
driver = "postgres"
sqlite_path = "/tmp/rapport.sqlite"
postgres_dsn = "postgres://rapport@localhost/rapport"
redis_addr = "localhost:6379"
cache_ttl = "90s"

[api]
listen = ":9091"

[client]
api_target = "http://remote:9091"

[embedding]
provider = "openai"
target = "https://api.openai.com"
model = "text-embedding-3-small"
dimensions = 1536
api_key = "sk-embed"

[completion]
provider = "openai"
model = "gpt-4o-mini"
base_url = "https://api.openai.com"
api_key = "sk-complete"

[ledger]
workers = 5
queue_size = 64
derivation_timeout = "45s"
sweep_interval = "2m"

[matching]
preference_weight = 0.7
description_weight = 0.3
max_results = 10

[recommend]
frequency_weight = 0.2
recency_weight = 0.2
affinity_weight = 0.6
frequency_saturation = 4
recency_half_life = "168h"
max_results = 3
min_confidence = 0.25

[eventstream]
provider = "kafka"
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "social"
`)

			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.Storage).To(Equal(config.StorageConfig{
				Driver:      "postgres",
				SQLitePath:  "/tmp/rapport.sqlite",
				PostgresDSN: "postgres://rapport@localhost/rapport",
				RedisAddr:   "localhost:6379",
				CacheTTL:    90 * time.Second,
			}))
			Expect(cfg.API.Listen).To(Equal(":9091"))
			Expect(cfg.Client.APITarget).To(Equal("http://remote:9091"))
			Expect(cfg.Embedding.APIKey).To(Equal("sk-embed"))
			Expect(cfg.Completion.APIKey).To(Equal("sk-complete"))
			Expect(cfg.Ledger).To(Equal(config.LedgerConfig{
				Workers:           5,
				QueueSize:         64,
				DerivationTimeout: 45 * time.Second,
				SweepInterval:     2 * time.Minute,
			}))
			Expect(cfg.Matching.PreferenceWeight).To(Equal(0.7))
			Expect(cfg.Matching.MaxResults).To(Equal(10))
			Expect(cfg.Recommend.AffinityWeight).To(Equal(0.6))
			Expect(cfg.Recommend.RecencyHalfLife).To(Equal(7 * 24 * time.Hour))
			Expect(cfg.Recommend.MinConfidence).To(Equal(0.25))
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"kafka-1:9092", "kafka-2:9092"}))
			Expect(cfg.EventStream.Topic).To(Equal("social"))
		})

		It("fills in defaults for unset fields in a partial config", func() {
			writeConfig(`[completion]
provider = "anthropic"
`)

			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Completion.Provider).To(Equal("anthropic"))
			Expect(cfg.Storage).To(Equal(defaults.Storage))
			Expect(cfg.Embedding).To(Equal(defaults.Embedding))
			Expect(cfg.Ledger).To(Equal(defaults.Ledger))
			Expect(cfg.Matching).To(Equal(defaults.Matching))
			Expect(cfg.Recommend).To(Equal(defaults.Recommend))
			Expect(cfg.EventStream).To(Equal(defaults.EventStream))
		})

		It("keeps a weight of zero when another weight in the section is set", func() {
			writeConfig(`[matching]
preference_weight = 1
description_weight = 0
`)

			cfg, err := load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Matching.PreferenceWeight).To(Equal(1.0))
			Expect(cfg.Matching.DescriptionWeight).To(BeZero())
		})

		It("returns error for malformed TOML", func() {
			writeConfig("this is not valid toml [[[")

			_, err := load()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 999\n")

			_, err := load()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version 999"))
		})

		DescribeTable("rejects invalid settings",
			func(data string) {
				writeConfig(data)
				_, err := load()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid config"))
			},
			Entry("unknown storage driver", "[storage]\ndriver = \"mongo\"\n"),
			Entry("postgres without a DSN", "[storage]\ndriver = \"postgres\"\n"),
			Entry("kafka without brokers", "[eventstream]\nprovider = \"kafka\"\n"),
			Entry("negative weight", "[matching]\npreference_weight = -1\n"),
			Entry("confidence above one", "[recommend]\nmin_confidence = 1.5\n"),
			Entry("derivation timeout too short", "[ledger]\nderivation_timeout = \"10ms\"\n"),
			Entry("client target that is not a URL", "[client]\napi_target = \"not a url\"\n"),
		)
	})

	Describe("SaveConfig", func() {
		It("round-trips every section", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "memory"
			cfg.Ledger.DerivationTimeout = 12 * time.Second
			cfg.Recommend.MinConfidence = 0.1
			cfg.EventStream = config.EventStreamConfig{Provider: "kafka", Brokers: []string{"localhost:9092"}, Topic: "t"}
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(nil)
			Expect(err).To(MatchError(ContainSubstring("cannot save nil config")))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("sets and reads back typed keys",
			func(key, value, want string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			},
			Entry("string", "completion.model", "gpt-4o", "gpt-4o"),
			Entry("uint", "ledger.workers", "8", "8"),
			Entry("int", "matching.max_results", "7", "7"),
			Entry("float", "recommend.min_confidence", "0.35", "0.35"),
			Entry("duration", "ledger.sweep_interval", "90s", "1m30s"),
			Entry("list", "eventstream.brokers", "a:9092, b:9092,", "a:9092,b:9092"),
		)

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("api.listen", ":7000")).To(Succeed())
			Expect(c.SetConfigValue("storage.driver", "memory")).To(Succeed())

			got, err := c.GetConfigValue("api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(":7000"))
		})

		It("returns default values when no config file exists", func() {
			got, err := c.GetConfigValue("client.api_target")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("http://localhost:8081"))
		})

		It("returns empty string for key with no default", func() {
			got, err := c.GetConfigValue("storage.postgres_dsn")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns error for unparseable values", func() {
			Expect(c.SetConfigValue("ledger.workers", "many")).To(MatchError(ContainSubstring("invalid value for ledger.workers")))
			Expect(c.SetConfigValue("ledger.sweep_interval", "soon")).To(HaveOccurred())
		})

		It("refuses values that leave the config invalid", func() {
			err := c.SetConfigValue("storage.driver", "postgres")
			Expect(err).To(MatchError(ContainSubstring("setting storage.driver")))

			Expect(c.SetConfigValue("storage.postgres_dsn", "postgres://localhost/rapport")).To(Succeed())
			Expect(c.SetConfigValue("storage.driver", "postgres")).To(Succeed())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every key in section order", func() {
			keys := config.ValidConfigKeys()
			Expect(keys[0]).To(Equal("storage.driver"))
			Expect(keys[len(keys)-1]).To(Equal("eventstream.topic"))
			Expect(keys).To(ContainElements(
				"api.listen",
				"embedding.dimensions",
				"completion.provider",
				"ledger.derivation_timeout",
				"matching.preference_weight",
				"recommend.recency_half_life",
			))
			for _, k := range keys {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			}
		})

		It("returns keys in stable order", func() {
			Expect(config.ValidConfigKeys()).To(Equal(config.ValidConfigKeys()))
		})

		It("rejects unknown and flat key names", func() {
			Expect(config.IsValidConfigKey("listen")).To(BeFalse())
			Expect(config.IsValidConfigKey("proxy.listen")).To(BeFalse())
		})
	})
})

var _ = Describe("PresetConfig", func() {
	It("configures openai for completion and embeddings", func() {
		cfg, err := config.PresetConfig("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
		Expect(config.Validate(cfg)).To(Succeed())
	})

	It("keeps ollama embeddings for anthropic", func() {
		cfg, err := config.PresetConfig("anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Completion.Provider).To(Equal("anthropic"))
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
		Expect(config.Validate(cfg)).To(Succeed())
	})

	It("is case-insensitive", func() {
		cfg, err := config.PresetConfig("OLLAMA")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Model).To(Equal("nomic-embed-text"))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("mistral")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("names every preset", func() {
		Expect(config.ValidPresetNames()).To(Equal([]string{"openai", "anthropic", "ollama"}))
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Driver).To(BeEmpty())
	})

	It("rejects unsupported config version", func() {
		_, err := config.ParseConfigTOML([]byte("version = 5\n"))
		Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("returns fully-populated valid defaults", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Storage.Driver).To(Equal("sqlite"))
		Expect(cfg.API.Listen).To(Equal(":8081"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
		Expect(cfg.Matching.PreferenceWeight).To(Equal(0.5))
		Expect(cfg.Recommend.RecencyHalfLife).To(Equal(14 * 24 * time.Hour))
		Expect(cfg.EventStream.Provider).To(Equal("nop"))
		Expect(config.Validate(cfg)).To(Succeed())
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("decodes defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(cfg.Storage).To(Equal(defaults.Storage))
		Expect(cfg.Ledger).To(Equal(defaults.Ledger))
		Expect(cfg.Matching).To(Equal(defaults.Matching))
		Expect(cfg.Recommend).To(Equal(defaults.Recommend))
		Expect(cfg.EventStream.Provider).To(Equal(defaults.EventStream.Provider))
		Expect(cfg.EventStream.Brokers).To(BeEmpty())
	})

	It("reads config file values over defaults", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[ledger]
derivation_timeout = "5s"
`), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Ledger.DerivationTimeout).To(Equal(5 * time.Second))
		Expect(cfg.Ledger.Workers).To(Equal(uint(3)))
	})

	It("env vars take precedence over config file values", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(`[storage]
driver = "sqlite"
`), 0o600)
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv("RAPPORT_STORAGE_DRIVER", "memory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.driver")).To(Equal("memory"))
	})

	It("rejects decoded settings that fail validation", func() {
		GinkgoT().Setenv("RAPPORT_EVENTSTREAM_PROVIDER", "carrier-pigeon")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.FromViper(v)
		Expect(err).To(MatchError(ContainSubstring("invalid config")))
	})
})

var _ = Describe("Flag registry", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("resolves a command's config from its config-dir and flags", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[client]\napi_target = \"http://file:9000\"\n\n[api]\nlisten = \":5555\"\n"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("config-dir", "", "")
		var target, listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		Expect(cmd.Flags().Set("config-dir", tmpDir)).To(Succeed())
		Expect(cmd.Flags().Set("api-target", "http://flag:7000")).To(Succeed())

		cfg, err := config.ForCommand(cmd, config.FlagAPITarget, config.FlagAPIListen)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Client.APITarget).To(Equal("http://flag:7000"))
		Expect(cfg.API.Listen).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{"nonexistent"})

		Expect(v.GetString("api.listen")).To(Equal(":8081"))
	})

	It("AddStringFlag pulls name, shorthand, and default from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)

		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("a"))
		Expect(f.Usage).To(Equal("Rapport API server URL"))
		Expect(f.DefValue).To(Equal("http://localhost:8081"))
	})

	It("AddUintFlag defaults embedding-dimensions", func() {
		cmd := &cobra.Command{Use: "test"}
		var dims uint
		config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &dims)

		f := cmd.Flags().Lookup("embedding-dimensions")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("768"))
	})

	It("gives every registry entry a viper key with a default", func() {
		for key, f := range config.Flags {
			Expect(config.IsValidConfigKey(f.ViperKey)).To(BeTrue(), key)
		}
	})
})
