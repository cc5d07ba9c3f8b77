package servecmder

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/dotdir"
	"github.com/papercomputeco/rapport/pkg/eventstream/nop"
	"github.com/papercomputeco/rapport/pkg/logger"
	"github.com/papercomputeco/rapport/pkg/storage/inmemory"
	"github.com/papercomputeco/rapport/pkg/storage/sqlite"
)

var _ = Describe("stack", func() {
	var (
		ctx    context.Context
		tmpDir string
		cfg    *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		cfg = config.NewDefaultConfig()
	})

	It("serves the API over an in-memory store", func() {
		cfg.Storage.Driver = "memory"

		st, err := newStack(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		req, err := http.NewRequest(http.MethodGet, "/ping", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := st.server.App().Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(Equal(`"pong"`))
	})

	It("mounts the MCP endpoint", func() {
		cfg.Storage.Driver = "memory"

		st, err := newStack(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		req, err := http.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}"))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err := st.server.App().Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).NotTo(Equal(http.StatusNotFound))
	})

	It("closes idempotently", func() {
		cfg.Storage.Driver = "memory"

		st, err := newStack(ctx, cfg, tmpDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Close()).To(Succeed())
		Expect(st.Close()).To(Succeed())
	})

	Describe("newStorageDriver", func() {
		It("builds the in-memory driver", func() {
			d, err := newStorageDriver(ctx, config.StorageConfig{Driver: "memory"}, tmpDir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
			Expect(d.Close()).To(Succeed())
		})

		It("uses the configured sqlite path", func() {
			path := filepath.Join(tmpDir, "custom.sqlite")
			d, err := newStorageDriver(ctx, config.StorageConfig{Driver: "sqlite", SQLitePath: path}, tmpDir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(d.Close)

			Expect(d).To(BeAssignableToTypeOf(&sqlite.SQLiteDriver{}))
			Expect(path).To(BeAnExistingFile())
		})

		It("defaults the sqlite file into the config directory", func() {
			d, err := newStorageDriver(ctx, config.StorageConfig{Driver: "sqlite"}, tmpDir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(d.Close)

			Expect(filepath.Join(tmpDir, dotdir.DatabaseFile)).To(BeAnExistingFile())
		})

		It("rejects unknown drivers", func() {
			_, err := newStorageDriver(ctx, config.StorageConfig{Driver: "mongo"}, tmpDir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unsupported storage driver")))
		})

		It("fails when redis is unreachable", func() {
			_, err := newStorageDriver(ctx, config.StorageConfig{Driver: "memory", RedisAddr: "127.0.0.1:1"}, tmpDir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("profile cache")))
		})
	})

	Describe("newPublisher", func() {
		It("defaults to the no-op publisher", func() {
			p, err := newPublisher(config.EventStreamConfig{Provider: "nop"}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})

		It("rejects unknown providers", func() {
			_, err := newPublisher(config.EventStreamConfig{Provider: "nats"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("command", func() {
		It("refuses an invalid config before serving", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[storage]\ndriver = \"postgres\"\n"), 0o600)).To(Succeed())

			cmd := NewServeCmd()
			cmd.Flags().String("config-dir", "", "")
			cmd.Flags().Bool("debug", false, "")
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs([]string{"--config-dir", tmpDir})

			Expect(cmd.Execute()).To(MatchError(ContainSubstring("invalid config")))
		})
	})
})
