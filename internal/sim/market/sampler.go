package market

import "math/rand"

// WeightedSampler draws values with probability proportional to their weight.
// The random source is injected so callers (and tests) control determinism.
type WeightedSampler struct {
	rng *rand.Rand
}

func NewWeightedSampler(rng *rand.Rand) *WeightedSampler {
	return &WeightedSampler{rng: rng}
}

// Pick returns one of values. Non-positive weights are skipped; when every
// weight is non-positive the first value is returned.
func (s *WeightedSampler) Pick(values []string, weights []int) string {
	if len(values) == 0 {
		return ""
	}
	total := 0
	for i := range values {
		if weights[i] > 0 {
			total += weights[i]
		}
	}
	if total <= 0 {
		return values[0]
	}
	roll := s.rng.Intn(total)
	for i := range values {
		if weights[i] <= 0 {
			continue
		}
		if roll < weights[i] {
			return values[i]
		}
		roll -= weights[i]
	}
	return values[len(values)-1]
}

// PickFloat is Pick for float weights.
func (s *WeightedSampler) PickFloat(values []string, weights []float64) string {
	if len(values) == 0 {
		return ""
	}
	total := 0.0
	for i := range values {
		if weights[i] > 0 {
			total += weights[i]
		}
	}
	if total <= 0 {
		return values[0]
	}
	roll := s.rng.Float64() * total
	for i := range values {
		if weights[i] <= 0 {
			continue
		}
		if roll < weights[i] {
			return values[i]
		}
		roll -= weights[i]
	}
	return values[len(values)-1]
}

// IntBetween returns a uniform integer in [min, max].
func (s *WeightedSampler) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.rng.Intn(max-min+1)
}

// FloatBetween returns a uniform float in [min, max).
func (s *WeightedSampler) FloatBetween(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.rng.Float64()*(max-min)
}

// Chance100 rolls a percentage check.
func (s *WeightedSampler) Chance100(percent float64) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return s.rng.Float64()*100 < percent
}
