// Package authcmder provides the auth command for storing provider API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/credentials"
)

const authLongDesc string = `Store API keys for hosted completion and embedding providers.

Keys are stored in credentials.toml in the .rapport/ directory with owner-only
permissions. "rapport serve" uses a stored key when neither the config file
nor the provider's environment variable supplies one.

Supported providers: anthropic, openai

Examples:
  rapport auth openai                Prompt for an OpenAI API key
  rapport auth --list                List stored credentials
  rapport auth --remove openai       Remove the stored OpenAI key
  echo $KEY | rapport auth anthropic Read the key from stdin`

const authShortDesc string = "Store provider API keys"

type authCommander struct {
	list   bool
	remove string
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			mgr, err := credentials.NewManager(configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			w := cmd.OutOrStdout()
			switch {
			case cmder.list:
				return runList(w, mgr)
			case cmder.remove != "":
				return runRemove(w, mgr, cmder.remove)
			case len(args) == 0:
				return fmt.Errorf("provider argument required\n\nSupported providers: %s",
					strings.Join(credentials.SupportedProviders(), ", "))
			default:
				return runStore(w, cmd.InOrStdin(), mgr, args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&cmder.list, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&cmder.remove, "remove", "", "Remove stored credentials for a provider")
	cmd.MarkFlagsMutuallyExclusive("list", "remove")

	return cmd
}

func runStore(w io.Writer, in io.Reader, mgr *credentials.Manager, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	key, err := readKey(w, in, provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := mgr.SetKey(provider, key); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(provider),
		cliui.DimStyle.Render("("+mgr.Path()+")"),
	)
	return nil
}

func runList(w io.Writer, mgr *credentials.Manager) error {
	providers, err := mgr.Providers()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(w, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(w, "  Use 'rapport auth <provider>' to store one.\n")
		fmt.Fprintf(w, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, p := range providers {
		line := "  " + cliui.SuccessMark + "  " + cliui.NameStyle.Render(p)
		if env := credentials.EnvVar(p); env != "" && os.Getenv(env) != "" {
			line += "  " + cliui.DimStyle.Render("(overridden by "+env+")")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	return nil
}

func runRemove(w io.Writer, mgr *credentials.Manager, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(provider))
	return nil
}

// readKey prompts with hidden input when in is a terminal and otherwise reads
// the first line.
func readKey(w io.Writer, in io.Reader, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(w, "Enter API key for %s (%s): ", provider, credentials.EnvVar(provider))
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(key), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
