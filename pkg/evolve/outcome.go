package evolve

import (
	"strings"
)

// Outcome is what a description chat turn decided about the profile. It is
// either ReplyOnly or ReplyWithDescription.
type Outcome interface {
	isOutcome()
}

// ReplyOnly leaves the profile unchanged.
type ReplyOnly struct{}

// ReplyWithDescription replaces the profile description.
type ReplyWithDescription struct {
	Description string
}

func (ReplyOnly) isOutcome()            {}
func (ReplyWithDescription) isOutcome() {}

// decide maps a proposed description onto an Outcome. Blank proposals and
// proposals equal to the current text are not revisions.
func decide(current, proposed string) Outcome {
	proposed = strings.TrimSpace(proposed)
	if proposed == "" || proposed == strings.TrimSpace(current) {
		return ReplyOnly{}
	}
	return ReplyWithDescription{Description: proposed}
}
