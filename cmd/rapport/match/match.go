// Package matchcmder provides the match command, which asks a running
// rapport server for people a user could meet.
package matchcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/utils"
)

var (
	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	reasonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

type matchCommander struct {
	userID          string
	interactionType string
	groupID         string
	preferences     []string
	description     string
	byEmbedding     bool

	apiTarget string
}

const matchLongDesc string = `Find people a user could meet via the Rapport API.

By default candidates are ranked on shared preferences and description
similarity. With --embedding they are ranked on description similarity
alone, using the user's stored description embedding.

Examples:
  rapport match alice
  rapport match alice --type coffee --prefer chess,hiking
  rapport match alice --description "someone to practice Spanish with"
  rapport match alice --group 0b7c... --embedding`

const matchShortDesc string = "Find matches for a user"

func NewMatchCmd() *cobra.Command {
	cmder := &matchCommander{}

	cmd := &cobra.Command{
		Use:   "match <user-id>",
		Short: matchShortDesc,
		Long:  matchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.ForCommand(cmd, config.FlagAPITarget)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.apiTarget = cfg.Client.APITarget
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.userID = args[0]
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.interactionType, "type", "t", "chat", "Kind of interaction (e.g. chat, coffee, study)")
	cmd.Flags().StringVarP(&cmder.groupID, "group", "g", "", "Restrict candidates to one group")
	cmd.Flags().StringSliceVarP(&cmder.preferences, "prefer", "p", nil, "Interests to look for, comma separated")
	cmd.Flags().StringVar(&cmder.description, "description", "", "Describe who you are looking for")
	cmd.Flags().BoolVarP(&cmder.byEmbedding, "embedding", "e", false, "Rank on description similarity alone")
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *matchCommander) run(cmd *cobra.Command) error {
	api, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}

	var matches []social.Match
	if c.byEmbedding {
		matches, err = api.MatchByEmbedding(cmd.Context(), c.userID, c.interactionType, c.groupID)
	} else {
		matches, err = api.Match(cmd.Context(), social.InteractionRequest{
			UserID:          c.userID,
			TargetGroupID:   c.groupID,
			InteractionType: c.interactionType,
			Description:     c.description,
			Preferences:     c.preferences,
		})
	}
	if err != nil {
		return err
	}

	render(cmd.OutOrStdout(), c.userID, matches)
	return nil
}

func render(w io.Writer, userID string, matches []social.Match) {
	if len(matches) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No matches found for "+userID+"."))
		return
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Matches for"), cliui.NameStyle.Render(userID))
	for i, m := range matches {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ValueStyle.Render(m.UserID),
			cliui.ScoreStyle.Render(fmt.Sprintf("score: %.2f", m.MatchScore)),
		)
		fmt.Fprintf(w, "      %s\n", reasonStyle.Render(m.MatchReason))

		if m.Profile != nil {
			if desc := strings.TrimSpace(m.Profile.Description); desc != "" {
				desc = strings.ReplaceAll(desc, "\n", " ")
				fmt.Fprintf(w, "      %s\n", cliui.PreviewStyle.Render(utils.Truncate(desc, 72)))
			}
			if len(m.Profile.Interests) > 0 {
				fmt.Fprintf(w, "      %s\n", cliui.DimStyle.Render(strings.Join(m.Profile.Interests, ", ")))
			}
		}
		fmt.Fprintln(w)
	}
}
