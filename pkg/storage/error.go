package storage

import (
	"github.com/papercomputeco/rapport/pkg/social"
)

// Record kinds used in not-found errors.
const (
	KindProfile     = "profile"
	KindGroup       = "group"
	KindInteraction = "interaction"
)

// NotFound reports a missing record of the given kind.
func NotFound(kind, id string) error {
	return social.NotFound(kind, id)
}
