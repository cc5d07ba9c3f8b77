package credentials

// File is the on-disk shape of credentials.toml.
type File struct {
	Version   int                    `toml:"version"`
	Providers map[string]ProviderKey `toml:"providers"`
}

// ProviderKey holds the API key stored for one provider.
type ProviderKey struct {
	APIKey string `toml:"api_key"`
}
