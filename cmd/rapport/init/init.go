// Package initcmder provides the init command for initializing a local
// .rapport directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/dotdir"
)

const fetchTimeout = 30 * time.Second

const initLongDesc string = `Initialize a new .rapport/ directory in the current working directory.

Creates a local .rapport/ directory that takes precedence over the default
~/.rapport/ directory for configuration and the SQLite database, and writes
a config.toml with default values unless one already exists.

Use --preset to start from a provider preset (openai, anthropic, ollama) or
from a config.toml served at an http(s) URL. A preset always overwrites the
existing config.toml.

Examples:
  rapport init
  rapport init --preset openai
  rapport init --preset https://example.com/rapport/config.toml`

const initShortDesc string = "Initialize a local .rapport/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Resolve the preset first so a bad one leaves nothing behind.
	var cfg *config.Config
	if c.preset != "" {
		cfg, err = resolvePreset(ctx, c.preset)
		if err != nil {
			return err
		}
	}

	existed := isDir(filepath.Join(cwd, ".rapport"))
	dir, err := dotdir.NewManager().Init(cwd)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, statErr := os.Stat(cfger.GetTarget())
	configExists := statErr == nil

	switch {
	case cfg != nil:
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s Wrote %s preset to %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(c.preset), cliui.DimStyle.Render(cfger.GetTarget()))
	case !configExists:
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
	}

	if existed {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		fmt.Fprintf(w, "Initialized .rapport directory: %s\n", dir)
	}
	return nil
}

// resolvePreset returns the named preset, or fetches and parses the
// config.toml at preset when it is an http(s) URL.
func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, preset, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	return config.ParseConfigTOML(data)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
