// Package completion is the text-completion capability: a prompt goes in,
// provider output comes back. Providers are asked for JSON output.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	defaultTimeout = 30 * time.Second
)

// ErrEmptyCompletion is returned when a provider answers with no content.
var ErrEmptyCompletion = errors.New("provider returned no content")

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai", "anthropic", or "ollama"
	Model    string // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001", "llama3.2"
	APIKey   string // explicit API key (highest priority)
	BaseURL  string // override base URL
	Timeout  time.Duration
}

// New builds a Completer from cfg.
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  3. Fall back to Ollama at localhost:11434
func New(cfg Config, logger *slog.Logger) (Completer, error) {
	provider := strings.ToLower(cfg.Provider)

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(provider)
	}

	if apiKey == "" && provider != ProviderOllama {
		logger.Warn("no API key found for completion provider, falling back to ollama", "provider", provider)
		provider = ProviderOllama
		cfg.BaseURL = ""
		cfg.Model = ""
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := client{timeout: timeout}
	switch provider {
	case ProviderOpenAI, "":
		return c.openAI(apiKey, orDefault(cfg.Model, "gpt-4o-mini"), orDefault(cfg.BaseURL, "https://api.openai.com")), nil

	case ProviderAnthropic:
		return c.anthropic(apiKey, orDefault(cfg.Model, "claude-haiku-4-5-20251001"), orDefault(cfg.BaseURL, "https://api.anthropic.com")), nil

	case ProviderOllama:
		return c.ollama(orDefault(cfg.Model, "llama3.2"), orDefault(cfg.BaseURL, "http://localhost:11434")), nil

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", provider)
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI, "":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

// DecodeJSON unmarshals a completion into v. Markdown code fences around the
// payload are tolerated.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), v); err != nil {
		return fmt.Errorf("decoding completion: %w", err)
	}
	return nil
}
