// Package credentials keeps provider API keys in credentials.toml inside the
// .rapport/ directory, so the server can reach hosted completion and
// embedding providers without keys in config.toml or the environment.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/rapport/pkg/dotdir"
)

const (
	fileName = "credentials.toml"

	currentVersion = 0
)

// envVars maps providers that need a key to the variable that supplies it.
var envVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// ErrNoDirectory is returned when writing without a resolved .rapport/ directory.
var ErrNoDirectory = errors.New("no .rapport directory found; run 'rapport init' or pass --config-dir")

// Manager reads and writes credentials.toml.
type Manager struct {
	path string
}

// NewManager resolves the credentials file under override, or under the
// local or home .rapport/ directory. When none exists the manager reads as
// empty and refuses writes.
func NewManager(override string) (*Manager, error) {
	target, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return &Manager{}, nil
	}
	return &Manager{path: filepath.Join(target, fileName)}, nil
}

// Path returns the credentials file location, or "" when unresolved.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the credentials file. A missing file reads as empty.
func (m *Manager) Load() (*File, error) {
	empty := &File{Version: currentVersion, Providers: map[string]ProviderKey{}}
	if m.path == "" {
		return empty, nil
	}

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	f := &File{}
	if err := toml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if f.Providers == nil {
		f.Providers = map[string]ProviderKey{}
	}
	return f, nil
}

// Save writes f with owner-only permissions.
func (m *Manager) Save(f *File) error {
	if f == nil {
		return errors.New("cannot save nil credentials")
	}
	if m.path == "" {
		return ErrNoDirectory
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(m.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// SetKey stores key for provider.
func (m *Manager) SetKey(provider, key string) error {
	return m.update(func(f *File) {
		f.Providers[provider] = ProviderKey{APIKey: key}
	})
}

// RemoveKey deletes the key stored for provider, if any.
func (m *Manager) RemoveKey(provider string) error {
	return m.update(func(f *File) {
		delete(f.Providers, provider)
	})
}

func (m *Manager) update(fn func(f *File)) error {
	f, err := m.Load()
	if err != nil {
		return err
	}
	fn(f)
	return m.Save(f)
}

// Key returns the stored key for provider, or "".
func (m *Manager) Key(provider string) (string, error) {
	f, err := m.Load()
	if err != nil {
		return "", err
	}
	return f.Providers[provider].APIKey, nil
}

// Providers returns the providers with a stored key, sorted.
func (m *Manager) Providers() ([]string, error) {
	f, err := m.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Providers))
	for name := range f.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Resolve picks the key to use for provider: explicit first, then the
// provider's environment variable, then the stored key.
func (m *Manager) Resolve(provider, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	provider = strings.ToLower(provider)
	if env := EnvVar(provider); env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return m.Key(provider)
}

// EnvVar returns the environment variable that carries provider's key, or "".
func EnvVar(provider string) string {
	return envVars[provider]
}

// SupportedProviders lists the providers that take an API key.
func SupportedProviders() []string {
	return []string{"anthropic", "openai"}
}

// IsSupportedProvider reports whether provider takes an API key.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
