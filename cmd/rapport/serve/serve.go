// Package servecmder provides the serve command, which runs the rapport API
// together with the background summary workers.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/logger"
)

type serveCommander struct {
	listen             string
	storageDriver      string
	sqlitePath         string
	postgresDSN        string
	redisAddr          string
	embeddingProvider  string
	embeddingTarget    string
	embeddingModel     string
	embeddingDims      uint
	completionProvider string
	completionModel    string
	workers            uint
	eventStream        string
	eventStreamTopic   string

	logFile   string
	debug     bool
	configDir string

	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the Rapport API server.

Serves the HTTP API and the MCP endpoint at /mcp, and runs the background
workers that keep conversation summaries and embeddings fresh. A periodic
sweep re-queues any summary that fell behind.

Settings resolve in order: flags, RAPPORT_* environment variables,
config.toml in the .rapport/ directory, then defaults.

Examples:
  rapport serve
  rapport serve --storage memory
  rapport serve --storage postgres --postgres-dsn postgres://localhost/rapport
  rapport serve --redis-addr localhost:6379 --eventstream kafka`

const serveShortDesc string = "Run the Rapport API server"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagRedisAddr,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagCompletionProv,
	config.FlagCompletionModel,
	config.FlagLedgerWorkers,
	config.FlagEventStreamProv,
	config.FlagEventStreamTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.ForCommand(cmd, serveFlags...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.cfg = cfg
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &cmder.redisAddr)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.Flags, config.FlagCompletionProv, &cmder.completionProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagCompletionModel, &cmder.completionModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagLedgerWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStreamProv, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStreamTopic, &cmder.eventStreamTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	st, err := newStack(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			c.logger.Error("shutdown incomplete", "error", err)
		}
	}()

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := st.server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context done, shutting down")
	}

	return st.server.Shutdown()
}

// newLogger builds the pretty stdout logger, fanned out to a JSON file when
// --log-file is set.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	stdout := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.logFile == "" {
		return stdout, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f))

	return logger.Multi(stdout, file), func() { _ = f.Close() }, nil
}
