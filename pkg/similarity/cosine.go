// Package similarity scores how alike two description embeddings are.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")

	// ErrZeroVector is returned when a vector is empty or has zero magnitude.
	ErrZeroVector = errors.New("embedding has zero magnitude")
)

// Cosine returns the cosine similarity of a and b mapped onto [0, 1].
// Opposed vectors score 0 rather than a negative value.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrZeroVector
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	// One square root keeps Cosine(v, v) exactly 1: sqrt(x*x) == x.
	return Clamp(dot / math.Sqrt(normA*normB)), nil
}

// Score is Cosine with unusable inputs scored as 0.
func Score(a, b []float32) float64 {
	s, err := Cosine(a, b)
	if err != nil {
		return 0
	}
	return s
}

// Usable reports whether v can take part in scoring against vectors of the
// given dimensionality. A dims of 0 accepts any non-empty length.
func Usable(v []float32, dims int) bool {
	if len(v) == 0 || (dims > 0 && len(v) != dims) {
		return false
	}
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}

// Clamp bounds s to [0, 1]. NaN becomes 0.
func Clamp(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
