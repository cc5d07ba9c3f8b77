// Package recommendcmder provides the recommend command, which shows friend
// recommendations from a running rapport server.
package recommendcmder

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/social"
)

var (
	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	reasonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

type recommendCommander struct {
	userID  string
	explain string
	friends bool

	apiTarget string
}

const recommendLongDesc string = `Show friend recommendations via the Rapport API.

Recommendations come from the people a user has talked with who are not yet
friends, scored on how often and how recently they talked and how closely
their descriptions align.

Use --explain to ask for a written explanation of one recommendation, or
--friends to list existing friends with their latest conversation summary.

Examples:
  rapport recommend alice
  rapport recommend alice --explain bob
  rapport recommend alice --friends`

const recommendShortDesc string = "Show friend recommendations"

func NewRecommendCmd() *cobra.Command {
	cmder := &recommendCommander{}

	cmd := &cobra.Command{
		Use:   "recommend <user-id>",
		Short: recommendShortDesc,
		Long:  recommendLongDesc,
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

	cmd.Flags().StringVarP(&cmder.explain, "explain", "x", "", "Explain the recommendation of this user")
	cmd.Flags().BoolVarP(&cmder.friends, "friends", "f", false, "List existing friends instead")
	cmd.MarkFlagsMutuallyExclusive("explain", "friends")
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *recommendCommander) run(cmd *cobra.Command) error {
	api, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	switch {
	case c.explain != "":
		var exp *recommend.Explanation
		err := cliui.Step(cmd.ErrOrStderr(), "Asking why "+c.explain+" could be a good friend", func() error {
			var stepErr error
			exp, stepErr = api.Explain(cmd.Context(), c.userID, c.explain)
			return stepErr
		})
		if err != nil {
			return err
		}
		return renderExplanation(w, exp)

	case c.friends:
		friends, err := api.Friends(cmd.Context(), c.userID)
		if err != nil {
			return err
		}
		renderFriends(w, c.userID, friends)
		return nil

	default:
		recs, err := api.Recommendations(cmd.Context(), c.userID)
		if err != nil {
			return err
		}
		renderRecommendations(w, c.userID, recs)
		return nil
	}
}

func renderRecommendations(w io.Writer, userID string, recs []social.FriendRecommendation) {
	if len(recs) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No recommendations for "+userID+" yet. Start some conversations!"))
		return
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("People"), cliui.NameStyle.Render(userID)+cliui.KeyStyle.Render(" might like to know"))
	for i, r := range recs {
		fmt.Fprintf(w, "  %s  %s  %s\n",
			rankStyle.Render(fmt.Sprintf("#%d", i+1)),
			cliui.ValueStyle.Render(r.UserID),
			cliui.ScoreStyle.Render(fmt.Sprintf("confidence: %.2f", r.ConfidenceScore)),
		)
		fmt.Fprintf(w, "      %s\n\n", reasonStyle.Render(r.Recommendation))
	}
}

func renderFriends(w io.Writer, userID string, friends []social.Friend) {
	if len(friends) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render(userID+" has no friends yet."))
		return
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Friends of"), cliui.NameStyle.Render(userID))
	for _, f := range friends {
		fmt.Fprintf(w, "  %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(f.UserID))
		if f.LastConversationSummary != "" {
			fmt.Fprintf(w, "    %s\n", cliui.PreviewStyle.Render(f.LastConversationSummary))
		}
	}
	fmt.Fprintln(w)
}

func renderExplanation(w io.Writer, exp *recommend.Explanation) error {
	header := fmt.Sprintf("# Why %s?\n\n_confidence %.2f_\n\n", exp.OtherUserID, exp.ConfidenceScore)

	rendered, err := cliui.RenderMarkdown(header + exp.Explanation)
	if err != nil {
		// fall back to the raw markdown
		rendered = header + exp.Explanation + "\n"
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}
