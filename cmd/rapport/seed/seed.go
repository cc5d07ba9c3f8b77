// Package seedcmder provides the seed command, which loads a YAML social
// graph into a running rapport server through its public API.
package seedcmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/cliui"
	"github.com/papercomputeco/rapport/pkg/config"
	"github.com/papercomputeco/rapport/pkg/social"
)

const seedLongDesc string = `Seed a social graph from a YAML fixture file.

Groups, profiles, friendships, and scripted chats are written through the
Rapport API, so descriptions are embedded and conversations are summarized
exactly as they would be for real users. Chats to the assistant may revise
the sender's description.

Examples:
  rapport seed demo.yaml
  rapport seed demo.yaml --api-target http://localhost:8081`

const seedShortDesc string = "Seed users, groups, and chats"

type seedCommander struct {
	path      string
	apiTarget string
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: seedShortDesc,
		Long:  seedLongDesc,
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
			cmder.path = args[0]
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *seedCommander) run(ctx context.Context, w io.Writer) error {
	fx, err := LoadFixtures(c.path)
	if err != nil {
		return err
	}

	api, err := client.New(c.apiTarget)
	if err != nil {
		return err
	}

	s := &seeder{api: api, groupIDs: map[string]string{}}

	steps := []struct {
		msg string
		fn  func(context.Context, *Fixtures) error
	}{
		{"Creating " + strconv.Itoa(len(fx.Groups)) + " groups", s.groups},
		{"Saving " + strconv.Itoa(len(fx.Users)) + " profiles", s.users},
		{"Adding " + strconv.Itoa(len(fx.Friends)) + " friendships", s.friends},
		{"Replaying " + strconv.Itoa(fx.Messages()) + " chat messages", s.chats},
	}
	for _, step := range steps {
		if err := cliui.Step(w, step.msg, func() error { return step.fn(ctx, fx) }); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\n  %s Seeded %s users %s into %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(len(fx.Users))),
		cliui.DimStyle.Render(fmt.Sprintf("(%d groups, %d messages)", len(fx.Groups), fx.Messages())),
		cliui.DimStyle.Render(api.Target()),
	)
	return nil
}

// seeder applies fixtures in dependency order: groups, then profiles that
// reference them, then relations between profiles.
type seeder struct {
	api      *client.Client
	groupIDs map[string]string
}

func (s *seeder) groups(ctx context.Context, fx *Fixtures) error {
	for _, g := range fx.Groups {
		created, err := s.api.CreateGroup(ctx, g.Name, g.Type, g.Description)
		if err != nil {
			return fmt.Errorf("group %s: %w", g.Key, err)
		}
		s.groupIDs[g.Key] = created.ID
	}
	return nil
}

func (s *seeder) users(ctx context.Context, fx *Fixtures) error {
	for _, u := range fx.Users {
		p := social.UserProfile{
			UserID:      u.ID,
			Description: u.Description,
			Interests:   u.Interests,
		}
		for _, key := range u.Groups {
			p.Groups = append(p.Groups, social.Group{ID: s.groupIDs[key]})
		}
		if err := s.api.PutProfile(ctx, p); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	return nil
}

func (s *seeder) friends(ctx context.Context, fx *Fixtures) error {
	for _, pair := range fx.Friends {
		if err := s.api.AddFriend(ctx, pair[0], pair[1]); err != nil {
			return fmt.Errorf("friends %s and %s: %w", pair[0], pair[1], err)
		}
	}
	return nil
}

func (s *seeder) chats(ctx context.Context, fx *Fixtures) error {
	for _, c := range fx.Chats {
		for _, m := range c.Messages {
			_, err := s.api.Chat(ctx, social.ChatMessage{
				SenderID:   c.From,
				ReceiverID: c.To,
				GroupID:    s.groupIDs[c.Group],
				Content:    m,
			})
			if err != nil {
				return fmt.Errorf("chat from %s: %w", c.From, err)
			}
		}
	}
	return nil
}
