// Package eventstream publishes change notifications for interactions and
// profiles to downstream consumers.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/rapport/pkg/social"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInteractionUpdated is emitted after a turn is appended.
	EventTypeInteractionUpdated = "rapport.interaction.updated"

	// EventTypeInteractionDerived is emitted after a summary and embedding
	// are stored for an interaction.
	EventTypeInteractionDerived = "rapport.interaction.derived"

	// EventTypeProfileEvolved is emitted after a description is replaced.
	EventTypeProfileEvolved = "rapport.profile.evolved"
)

// Event is a transport-neutral change notification.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Subject orders events: the pair key for interactions, the user id for
	// profiles.
	Subject string `json:"subject"`

	Interaction *InteractionMeta `json:"interaction,omitempty"`
	Profile     *ProfileMeta     `json:"profile,omitempty"`
}

// InteractionMeta describes the interaction an event refers to.
type InteractionMeta struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	OtherUserID  string `json:"other_user_id"`
	GroupID      string `json:"group_id,omitempty"`
	TurnCount    int    `json:"turn_count"`
	DerivedTurns int    `json:"derived_turns"`
}

// ProfileMeta describes the profile an event refers to.
type ProfileMeta struct {
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewInteractionEvent builds an event of eventType for rec.
func NewInteractionEvent(eventType string, rec *social.Interaction) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Subject:       rec.Key().String(),
		Interaction: &InteractionMeta{
			ID:           rec.ID,
			UserID:       rec.UserID,
			OtherUserID:  rec.OtherUserID,
			GroupID:      rec.GroupID,
			TurnCount:    len(rec.Messages),
			DerivedTurns: rec.DerivedTurns,
		},
	}
}

// NewProfileEvent builds a profile-evolved event.
func NewProfileEvent(userID, description string, at time.Time) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeProfileEvolved,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Subject:       userID,
		Profile: &ProfileMeta{
			UserID:      userID,
			Description: description,
			UpdatedAt:   at,
		},
	}
}
