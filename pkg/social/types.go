// Package social holds the shared data model for profiles, groups,
// interactions, and the ranked results built from them.
package social

import (
	"time"
)

// AssistantID is the reserved counterpart id for a user's description chat.
const AssistantID = "assistant"

// GroupType classifies a group.
type GroupType string

const (
	GroupWork    GroupType = "work"
	GroupFriends GroupType = "friends"
	GroupClub    GroupType = "club"
	GroupOther   GroupType = "other"
)

// Valid reports whether t is one of the known group types.
func (t GroupType) Valid() bool {
	switch t {
	case GroupWork, GroupFriends, GroupClub, GroupOther:
		return true
	}
	return false
}

// Group is a named collection of users.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        GroupType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// UserProfile is a user's evolving description and the embedding derived
// from it. Description and DescriptionEmbedding always change together.
type UserProfile struct {
	UserID               string    `json:"user_id"`
	Description          string    `json:"description"`
	Interests            []string  `json:"interests"`
	Groups               []Group   `json:"groups"`
	DescriptionEmbedding []float32 `json:"description_embedding,omitempty"`
	DescriptionUpdatedAt time.Time `json:"description_updated_at,omitzero"`
}

// GroupIDs returns the ids of the profile's groups in order.
func (p *UserProfile) GroupIDs() []string {
	ids := make([]string, 0, len(p.Groups))
	for _, g := range p.Groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Interests = append([]string{}, p.Interests...)
	c.Groups = append([]Group{}, p.Groups...)
	c.DescriptionEmbedding = append([]float32(nil), p.DescriptionEmbedding...)
	return &c
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Interaction is the running record of one pair's conversation within a
// group scope. UserID and OtherUserID are stored in canonical order.
type Interaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	GroupID     string    `json:"group_id,omitempty"`
	Messages    []Turn    `json:"messages"`
	Summary     string    `json:"summary,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// DerivedTurns is how many turns Summary and Embedding cover.
	DerivedTurns int `json:"derived_turns"`

	// SummaryPending is set on a served copy whose derivation could not be
	// refreshed. It is never stored.
	SummaryPending bool `json:"summary_pending,omitempty"`
}

// Key returns the canonical pair key of the record.
func (i *Interaction) Key() PairKey {
	return NewPairKey(i.UserID, i.OtherUserID, i.GroupID)
}

// Stale reports whether turns were appended since the last derivation.
func (i *Interaction) Stale() bool {
	return i.DerivedTurns < len(i.Messages)
}

// Counterpart returns the other participant from userID's point of view.
func (i *Interaction) Counterpart(userID string) string {
	if i.UserID == userID {
		return i.OtherUserID
	}
	return i.UserID
}

// Clone returns a deep copy of the interaction.
func (i *Interaction) Clone() *Interaction {
	if i == nil {
		return nil
	}
	c := *i
	c.Messages = append([]Turn(nil), i.Messages...)
	c.Embedding = append([]float32(nil), i.Embedding...)
	return &c
}

// Match is one ranked candidate for an interaction request.
type Match struct {
	UserID          string       `json:"user_id"`
	Profile         *UserProfile `json:"profile"`
	MatchScore      float64      `json:"match_score"`
	MatchReason     string       `json:"match_reason"`
	InteractionType string       `json:"interaction_type"`
	GroupID         string       `json:"group_id,omitempty"`
}

// Friend is an existing friend and the latest summary of the pair's talk.
type Friend struct {
	UserID                  string       `json:"user_id"`
	Profile                 *UserProfile `json:"profile"`
	LastConversationSummary string       `json:"last_conversation_summary"`
}

// FriendRecommendation is a suggested new connection.
type FriendRecommendation struct {
	UserID          string       `json:"user_id"`
	Profile         *UserProfile `json:"profile"`
	Recommendation  string       `json:"recommendation"`
	ConfidenceScore float64      `json:"confidence_score"`
}

// UserDescription is the description view of a profile.
type UserDescription struct {
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"embedding"`
	LastUpdated time.Time `json:"last_updated"`
}

// DescriptionOf projects a profile onto its description view.
func DescriptionOf(p *UserProfile) UserDescription {
	return UserDescription{
		UserID:      p.UserID,
		Description: p.Description,
		Embedding:   p.DescriptionEmbedding,
		LastUpdated: p.DescriptionUpdatedAt,
	}
}

// ChatMessage is one inbound chat turn. An empty ReceiverID or AssistantID
// addresses the description assistant.
type ChatMessage struct {
	Content    string `json:"content" validate:"required"`
	SenderID   string `json:"sender_id" validate:"required"`
	ReceiverID string `json:"receiver_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
}

// ToAssistant reports whether the message is addressed to the assistant.
func (m ChatMessage) ToAssistant() bool {
	return m.ReceiverID == "" || m.ReceiverID == AssistantID
}

// ChatResponse is the reply to a ChatMessage.
type ChatResponse struct {
	Response               string  `json:"response"`
	ConversationHistory    []Turn  `json:"conversation_history"`
	UpdatedUserDescription *string `json:"updated_user_description,omitempty"`
	Warning                string  `json:"warning,omitempty"`
}

// InteractionRequest asks for candidates for an interaction.
type InteractionRequest struct {
	UserID          string   `json:"user_id" validate:"required"`
	TargetGroupID   string   `json:"target_group_id,omitempty"`
	InteractionType string   `json:"interaction_type" validate:"required"`
	Description     string   `json:"description"`
	Preferences     []string `json:"preferences"`
}
