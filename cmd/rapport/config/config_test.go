package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/rapport/cmd/rapport/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .rapport dir so the manager picks it up
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".rapport"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	execute := func(args ...string) (string, error) {
		cmd := configcmder.NewConfigCmd()
		buf := &bytes.Buffer{}
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return buf.String(), err
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			_, err := execute("set", "completion.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(filepath.Join(tmpDir, ".rapport", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			_, err := execute("set", "proxy.provider", "anthropic")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := execute("set", "completion.provider")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid uint values", func() {
			_, err := execute("set", "embedding.dimensions", "not-a-number")
			Expect(err).To(HaveOccurred())
		})

		It("rejects values the config does not accept", func() {
			_, err := execute("set", "storage.driver", "mongodb")
			Expect(err).To(MatchError(ContainSubstring("invalid config")))
		})

		It("writes into --config-dir when the flag is present", func() {
			dir := filepath.Join(tmpDir, "elsewhere")
			cmd := configcmder.NewConfigCmd()
			cmd.PersistentFlags().String("config-dir", dir, "")
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"set", "api.listen", ":9999"})
			Expect(cmd.Execute()).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`":9999"`))
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := execute("set", "completion.model", "llama3.2")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "completion.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("llama3.2"))
			Expect(out).To(ContainSubstring("config.toml"))
		})

		It("reports the default for an unset key", func() {
			out, err := execute("get", "api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(":8081"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := execute("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("storage.driver"))
			Expect(out).To(ContainSubstring("eventstream.topic"))
		})

		It("shows set values", func() {
			_, err := execute("set", "eventstream.brokers", "kafka-1:9092,kafka-2:9092")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Using config file:"))
			Expect(out).To(ContainSubstring("kafka-1:9092,kafka-2:9092"))
		})
	})
})
