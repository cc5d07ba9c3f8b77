package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/social"
)

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	return c.do(ctx, http.MethodGet, "/ping", nil, nil, &pong)
}

// PutProfile creates or replaces a profile.
func (c *Client) PutProfile(ctx context.Context, p social.UserProfile) error {
	return c.do(ctx, http.MethodPost, userPath(p.UserID, "profile"), nil, p, nil)
}

// GetProfile fetches a profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (*social.UserProfile, error) {
	var p social.UserProfile
	if err := c.do(ctx, http.MethodGet, userPath(userID, "profile"), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateGroup creates a group and returns it with its assigned id.
func (c *Client) CreateGroup(ctx context.Context, name string, groupType social.GroupType, description string) (*social.Group, error) {
	in := struct {
		Name        string           `json:"name"`
		Type        social.GroupType `json:"type"`
		Description string           `json:"description,omitempty"`
	}{name, groupType, description}

	var g social.Group
	if err := c.do(ctx, http.MethodPost, "/groups", nil, in, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// JoinGroup adds userID to groupID.
func (c *Client) JoinGroup(ctx context.Context, groupID, userID string) error {
	in := map[string]string{"user_id": userID}
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/members", nil, in, nil)
}

// AddFriend records a friendship between userID and friendID.
func (c *Client) AddFriend(ctx context.Context, userID, friendID string) error {
	in := map[string]string{"friend_id": friendID}
	return c.do(ctx, http.MethodPost, userPath(userID, "friends"), nil, in, nil)
}

// Friends lists the user's friends.
func (c *Client) Friends(ctx context.Context, userID string) ([]social.Friend, error) {
	var out []social.Friend
	if err := c.do(ctx, http.MethodGet, userPath(userID, "friends"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat sends one chat message.
func (c *Client) Chat(ctx context.Context, msg social.ChatMessage) (*social.ChatResponse, error) {
	var out social.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", nil, msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Match ranks candidates by preferences and description.
func (c *Client) Match(ctx context.Context, req social.InteractionRequest) ([]social.Match, error) {
	var out []social.Match
	if err := c.do(ctx, http.MethodPost, "/matchmaking/request", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MatchByEmbedding ranks candidates on description similarity alone.
func (c *Client) MatchByEmbedding(ctx context.Context, userID, interactionType, groupID string) ([]social.Match, error) {
	q := url.Values{}
	q.Set("interaction_type", interactionType)
	if groupID != "" {
		q.Set("group_id", groupID)
	}

	var out []social.Match
	if err := c.do(ctx, http.MethodGet, "/matchmaking/embeddings/"+url.PathEscape(userID), q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Recommendations fetches friend recommendations for userID.
func (c *Client) Recommendations(ctx context.Context, userID string) ([]social.FriendRecommendation, error) {
	var out []social.FriendRecommendation
	if err := c.do(ctx, http.MethodGet, userPath(userID, "friend-recommendations"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Explain asks why otherID was suggested to userID.
func (c *Client) Explain(ctx context.Context, userID, otherID string) (*recommend.Explanation, error) {
	var out recommend.Explanation
	path := userPath(userID, "friend-recommendations", url.PathEscape(otherID), "explanation")
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
