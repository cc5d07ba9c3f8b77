package seedcmder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/rapport/pkg/social"
)

// Fixtures is a YAML description of a small social graph.
//
//	groups:
//	  - key: chess
//	    name: Chess Club
//	    type: club
//	users:
//	  - id: alice
//	    description: Plays chess on weekends
//	    interests: [chess, hiking]
//	    groups: [chess]
//	friends:
//	  - [alice, bob]
//	chats:
//	  - from: alice
//	    to: bob
//	    group: chess
//	    messages: ["Fancy a game on Saturday?"]
type Fixtures struct {
	Groups  []GroupFixture `yaml:"groups"`
	Users   []UserFixture  `yaml:"users"`
	Friends [][2]string    `yaml:"friends"`
	Chats   []ChatFixture  `yaml:"chats"`
}

// GroupFixture is a group referenced elsewhere in the file by Key. The
// server assigns the real id.
type GroupFixture struct {
	Key         string           `yaml:"key"`
	Name        string           `yaml:"name"`
	Type        social.GroupType `yaml:"type"`
	Description string           `yaml:"description"`
}

type UserFixture struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Interests   []string `yaml:"interests"`
	Groups      []string `yaml:"groups"`
}

// ChatFixture is a scripted conversation. An empty To talks to the
// assistant.
type ChatFixture struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	Group    string   `yaml:"group"`
	Messages []string `yaml:"messages"`
}

// LoadFixtures reads and checks the fixture file at path.
func LoadFixtures(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	return ParseFixtures(f)
}

// ParseFixtures decodes fixtures from r. Unknown keys are rejected.
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var fx Fixtures
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	if err := fx.check(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// check verifies that every reference resolves within the file.
func (fx *Fixtures) check() error {
	var problems []string

	groups := make(map[string]struct{}, len(fx.Groups))
	for i, g := range fx.Groups {
		switch {
		case strings.TrimSpace(g.Key) == "":
			problems = append(problems, fmt.Sprintf("groups[%d]: key is required", i))
		case hasKey(groups, g.Key):
			problems = append(problems, fmt.Sprintf("groups[%d]: duplicate key %q", i, g.Key))
		}
		groups[g.Key] = struct{}{}
	}

	users := make(map[string]struct{}, len(fx.Users))
	for i, u := range fx.Users {
		switch {
		case strings.TrimSpace(u.ID) == "":
			problems = append(problems, fmt.Sprintf("users[%d]: id is required", i))
		case hasKey(users, u.ID):
			problems = append(problems, fmt.Sprintf("users[%d]: duplicate id %q", i, u.ID))
		}
		users[u.ID] = struct{}{}

		for _, key := range u.Groups {
			if !hasKey(groups, key) {
				problems = append(problems, fmt.Sprintf("users[%d]: unknown group %q", i, key))
			}
		}
	}

	for i, pair := range fx.Friends {
		for _, id := range pair {
			if !hasKey(users, id) {
				problems = append(problems, fmt.Sprintf("friends[%d]: unknown user %q", i, id))
			}
		}
	}

	for i, c := range fx.Chats {
		if !hasKey(users, c.From) {
			problems = append(problems, fmt.Sprintf("chats[%d]: unknown user %q", i, c.From))
		}
		if c.To != "" && !hasKey(users, c.To) {
			problems = append(problems, fmt.Sprintf("chats[%d]: unknown user %q", i, c.To))
		}
		if c.Group != "" && !hasKey(groups, c.Group) {
			problems = append(problems, fmt.Sprintf("chats[%d]: unknown group %q", i, c.Group))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid fixtures:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Messages counts the scripted chat messages.
func (fx *Fixtures) Messages() int {
	n := 0
	for _, c := range fx.Chats {
		n += len(c.Messages)
	}
	return n
}

func hasKey(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}
