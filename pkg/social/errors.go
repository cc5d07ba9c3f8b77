package social

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/papercomputeco/rapport/pkg/similarity"
)

var (
	// ErrValidation classifies malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound classifies references to records that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrDerivationFailed is returned when the completion or embedding
	// capability failed or timed out. Callers may retry.
	ErrDerivationFailed = errors.New("derivation failed")

	// ErrPartialUpdate marks an operation whose primary effect succeeded
	// while a follow-up write did not.
	ErrPartialUpdate = errors.New("partial update")

	// ErrStorageUnavailable is returned when the store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownGroup is returned when a group id does not exist. It is a
	// validation error.
	ErrUnknownGroup = &ValidationError{Fields: map[string]string{"group_id": "unknown group"}}
)

// ValidationError describes rejected input field by field.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/reason pairs.
func NewValidationError(kv ...string) *ValidationError {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	if target == ErrUnknownGroup {
		return e.Fields["group_id"] == "unknown group"
	}
	return false
}

// UnknownGroupError returns ErrUnknownGroup naming the offending group.
func UnknownGroupError(groupID string) error {
	return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.ID
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound returns a NotFoundError for kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Derivation wraps err as ErrDerivationFailed.
func Derivation(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDerivationFailed, what, err)
}

// Unavailable wraps a driver error as ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// IsValidation reports whether err should be surfaced as rejected input.
// Embedding dimension mismatches count as validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, similarity.ErrDimensionMismatch)
}
