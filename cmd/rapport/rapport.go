// Package rapportcmder is the root rapport command.
package rapportcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/rapport/cmd/rapport/auth"
	chatcmder "github.com/papercomputeco/rapport/cmd/rapport/chat"
	configcmder "github.com/papercomputeco/rapport/cmd/rapport/config"
	initcmder "github.com/papercomputeco/rapport/cmd/rapport/init"
	matchcmder "github.com/papercomputeco/rapport/cmd/rapport/match"
	recommendcmder "github.com/papercomputeco/rapport/cmd/rapport/recommend"
	seedcmder "github.com/papercomputeco/rapport/cmd/rapport/seed"
	servecmder "github.com/papercomputeco/rapport/cmd/rapport/serve"
	statuscmder "github.com/papercomputeco/rapport/cmd/rapport/status"
	versioncmder "github.com/papercomputeco/rapport/cmd/version"
)

const rapportLongDesc string = `Rapport is a matchmaking and social graph service.

Users keep a free-form self-description that evolves as they chat with the
assistant. Rapport records who talks to whom, suggests people to meet, and
recommends new friends from conversation history.

Run the server:
  rapport serve

Talk to a running server:
  rapport chat alice
  rapport match alice --type coffee --prefer chess
  rapport recommend alice --explain bob`

const rapportShortDesc string = "Rapport - matchmaking and social graph"

func NewRapportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rapport",
		Short:         rapportShortDesc,
		Long:          rapportLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .rapport/ directory holding config.toml")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(matchcmder.NewMatchCmd())
	cmd.AddCommand(recommendcmder.NewRecommendCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
