package social

import (
	"strings"
)

// ValidatePair checks that two user ids can form an interaction pair.
func ValidatePair(a, b string) error {
	fields := map[string]string{}
	if strings.TrimSpace(a) == "" {
		fields["user_id"] = "required"
	}
	if strings.TrimSpace(b) == "" {
		fields["other_user_id"] = "required"
	}
	if len(fields) == 0 && a == b {
		fields["other_user_id"] = "must differ from user_id"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateTurn checks a turn before it is appended.
func ValidateTurn(t Turn) error {
	fields := map[string]string{}
	if !t.Role.Valid() {
		fields["role"] = "must be user or assistant"
	}
	if strings.TrimSpace(t.Content) == "" {
		fields["content"] = "required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// NormalizeTerms lowercases, trims, and de-duplicates terms, dropping empty
// ones. Order of first occurrence is kept.
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		n := strings.ToLower(strings.TrimSpace(t))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
