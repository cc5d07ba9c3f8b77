// Package chatcmder provides the chat command for talking to the rapport
// assistant, or to another user's persona, from the terminal.
package chatcmder

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/social"
)

var (
	userPrompt   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	partnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	updatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Italic(true)
)

type chatCommander struct {
	userID  string
	with    string
	groupID string

	apiTarget string
}

const chatLongDesc string = `Start an interactive chat session via the Rapport API.

Without --with, the user talks to the assistant. The assistant asks about
the user and refines their description as the conversation goes; every
revision is shown as it lands.

With --with, the user talks to another user's persona. The exchange is
recorded in both users' interaction history and feeds friend
recommendations, but neither description changes.

Examples:
  rapport chat alice
  rapport chat alice --with bob
  rapport chat alice --with bob --group 0b7c...`

const chatShortDesc string = "Interactive chat through the Rapport API"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat <user-id>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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

	cmd.Flags().StringVarP(&cmder.with, "with", "w", "", "Talk to this user's persona instead of the assistant")
	cmd.Flags().StringVarP(&cmder.groupID, "group", "g", "", "Group the conversation takes place in")
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	api, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	partner := c.with
	if partner == "" {
		partner = social.AssistantID
	}
	partnerPrompt := partnerStyle.Render(partner + "> ")

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s %s  %s %s\n",
		cliui.KeyStyle.Render("You:"), cliui.NameStyle.Render(c.userID),
		cliui.KeyStyle.Render("Talking to:"), cliui.ValueStyle.Render(partner),
	)
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		resp, err := api.Chat(cmd.Context(), social.ChatMessage{
			SenderID:   c.userID,
			ReceiverID: c.with,
			GroupID:    c.groupID,
			Content:    input,
		})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s %v\n", cliui.FailMark, err)
			if client.Retryable(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.DimStyle.Render("The model did not answer. Try sending that again."))
			}
			continue
		}

		printResponse(out, partnerPrompt, resp)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(out)
	return nil
}

func printResponse(w io.Writer, prompt string, resp *social.ChatResponse) {
	fmt.Fprintf(w, "%s%s\n", prompt, resp.Response)

	if resp.UpdatedUserDescription != nil {
		fmt.Fprintf(w, "\n  %s %s\n  %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render("Description updated:"),
			updatedStyle.Render(*resp.UpdatedUserDescription),
		)
	}
	if resp.Warning != "" {
		fmt.Fprintf(w, "\n  %s %s\n", cliui.FailMark, cliui.DimStyle.Render(resp.Warning))
	}
	fmt.Fprintln(w)
}
