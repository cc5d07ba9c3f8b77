package recommend

import (
	"fmt"
	"math"
	"time"

	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/similarity"
)

// Weights configures the confidence formula.
type Weights struct {
	Frequency float64
	Recency   float64
	Affinity  float64

	// Saturation is the turn count at which frequency reaches one half.
	Saturation float64

	// HalfLife is the age at which recency reaches one half.
	HalfLife time.Duration
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		Frequency:  0.3,
		Recency:    0.3,
		Affinity:   0.4,
		Saturation: 10,
		HalfLife:   14 * 24 * time.Hour,
	}
}

type factor int

const (
	factorFrequency factor = iota
	factorRecency
	factorAffinity
)

// breakdown holds the weighted terms of one confidence score.
type breakdown struct {
	frequency float64
	recency   float64
	affinity  float64
}

func (b breakdown) total() float64 {
	return similarity.Clamp(b.frequency + b.recency + b.affinity)
}

// dominant returns the largest weighted term. Earlier factors win ties.
func (b breakdown) dominant() factor {
	f, best := factorFrequency, b.frequency
	if b.recency > best {
		f, best = factorRecency, b.recency
	}
	if b.affinity > best {
		f = factorAffinity
	}
	return f
}

func (w Weights) score(stats ledger.PartnerStats, userEmb, partnerEmb []float32, now time.Time) breakdown {
	var freq, rec float64
	if stats.Turns > 0 {
		freq = float64(stats.Turns) / (float64(stats.Turns) + w.Saturation)
	}
	if !stats.LastAt.IsZero() && w.HalfLife > 0 {
		age := max(now.Sub(stats.LastAt), 0)
		rec = math.Pow(0.5, float64(age)/float64(w.HalfLife))
	}
	aff := similarity.Score(userEmb, partnerEmb)

	return breakdown{
		frequency: w.Frequency * freq,
		recency:   w.Recency * rec,
		affinity:  w.Affinity * aff,
	}
}

func reason(b breakdown, stats ledger.PartnerStats) string {
	switch b.dominant() {
	case factorRecency:
		return fmt.Sprintf("You talked with %s recently", stats.UserID)
	case factorAffinity:
		return fmt.Sprintf("Your descriptions are closely aligned with %s's", stats.UserID)
	default:
		return fmt.Sprintf("You've exchanged %d messages with %s", stats.Turns, stats.UserID)
	}
}
