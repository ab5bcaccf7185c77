package memory

import (
	"math"
	"time"
)

// DefaultDecayRate is the per-day strength multiplier.
const DefaultDecayRate = 0.95

// freshWindowDays treats a memory accessed within the last ~86 seconds as
// fresh, absorbing clock skew between writer and reader.
const freshWindowDays = 0.001

// Decay computes effective (decay-adjusted, access-boosted) strength.
// It is a pure function of its inputs and never writes anything back:
// recalls that do not return a memory must not compound-decay it.
type Decay struct {
	Rate float64
}

// NewDecay returns a Decay engine with the given per-day rate. Rates outside
// (0, 1] fall back to the default.
func NewDecay(rate float64) Decay {
	if rate <= 0 || rate > 1 {
		rate = DefaultDecayRate
	}
	return Decay{Rate: rate}
}

// EffectiveStrength returns the strength of a memory as of now.
//
//	days_since   = (now − last_accessed) / 86400
//	decay_factor = rate ^ days_since
//	access_boost = log2(access_count + 1)   (1 access ≈ 1.0)
//	effective    = clamp(base · decay_factor · access_boost, 0, 1)
func (d Decay) EffectiveStrength(base float64, lastAccessed time.Time, accessCount int, now time.Time) float64 {
	daysSince := now.Sub(lastAccessed).Seconds() / 86400

	// Just accessed (or clock skew): the base stands, capped at 1.
	if daysSince < freshWindowDays {
		return math.Min(base, 1.0)
	}

	decayFactor := math.Pow(d.Rate, daysSince)
	accessBoost := math.Log(float64(accessCount)+1) / math.Ln2

	return clamp01(base * decayFactor * accessBoost)
}

// EffectiveFor is EffectiveStrength applied to a stored memory.
func (d Decay) EffectiveFor(m Memory, now time.Time) float64 {
	return d.EffectiveStrength(m.Strength, m.LastAccessed, m.AccessCount, now)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
