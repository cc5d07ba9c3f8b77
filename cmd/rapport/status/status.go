// Package statuscmder provides the status command, which reports the
// resolved configuration and whether the configured server answers.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/dotdir"
)

const pingTimeout = 5 * time.Second

const statusLongDesc string = `Show the resolved rapport configuration and ping the API server.

Reports which .rapport/ directory is in use, the storage driver, and the
configured capability providers, then checks that the API target answers.

Examples:
  rapport status
  rapport status --api-target http://rapport.internal:8081`

const statusShortDesc string = "Show configuration and server status"

type statusCommander struct {
	apiTarget string
	configDir string
	cfg       *config.Config
}

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.ForCommand(cmd, config.FlagAPITarget)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *statusCommander) run(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "(none, using defaults)"
	}

	fmt.Fprintln(w)
	row(w, "Config dir: ", dir)
	row(w, "Storage:    ", c.cfg.Storage.Driver)
	row(w, "Embedding:  ", fmt.Sprintf("%s %s (%d dims)", c.cfg.Embedding.Provider, c.cfg.Embedding.Model, c.cfg.Embedding.Dimensions))
	row(w, "Completion: ", c.cfg.Completion.Provider+" "+c.cfg.Completion.Model)
	row(w, "Events:     ", c.cfg.EventStream.Provider)
	row(w, "API target: ", c.cfg.Client.APITarget)

	api, err := client.New(c.cfg.Client.APITarget)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err = api.Ping(pingCtx)
	if err != nil {
		fmt.Fprintf(w, "\n  %s API unreachable: %s\n\n", cliui.FailMark, cliui.DimStyle.Render(err.Error()))
		return nil
	}
	fmt.Fprintf(w, "\n  %s API is up %s\n\n", cliui.SuccessMark, cliui.DimStyle.Render("("+cliui.FormatDuration(time.Since(start))+")"))
	return nil
}

func row(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(value))
}
