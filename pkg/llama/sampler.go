package llama

import (
	"math"
	"time"
)

// SampleMode selects which token-selection strategy Sample uses.
type SampleMode int

const (
	// SampleGreedy always picks the argmax logit.
	SampleGreedy SampleMode = iota
	// SampleTemperature applies temperature scaling, a numerically
	// stabilized softmax, then inverse-CDF sampling against a uniform draw.
	SampleTemperature
)

// SampleParams configures a single Sample call.
type SampleParams struct {
	Mode        SampleMode
	Temperature float32 // ignored when Mode == SampleGreedy
}

// Sample picks one token id from a vocabulary-sized logits vector.
//
// Temperature sampling's randomness comes from a process-global LCG
// seeded once from wall-clock time at package initialization — not thread-safe and not
// cryptographically useful. This is a deliberate limitation carried over
// unchanged: a production implementation wanting determinism or safe
// concurrent sampling would need a per-request PRNG instead.
func Sample(logits []float32, params SampleParams) int32 {
	if params.Mode == SampleGreedy || params.Temperature <= 0 {
		return argmax(logits)
	}
	return sampleTemperature(logits, params.Temperature)
}

func argmax(logits []float32) int32 {
	best := int32(0)
	bestVal := logits[0]
	for i := 1; i < len(logits); i++ {
		if logits[i] > bestVal {
			bestVal = logits[i]
			best = int32(i)
		}
	}
	return best
}

func sampleTemperature(logits []float32, temperature float32) int32 {
	scaled := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, v := range logits {
		x := float64(v) / float64(temperature)
		scaled[i] = x
		if x > maxVal {
			maxVal = x
		}
	}

	var sum float64
	for i, x := range scaled {
		e := math.Exp(x - maxVal)
		scaled[i] = e
		sum += e
	}

	target := globalLCG.next() * sum
	var cumulative float64
	for i, p := range scaled {
		cumulative += p
		if target <= cumulative {
			return int32(i)
		}
	}
	return int32(len(logits) - 1)
}

// lcg is a linear congruential generator: fast and deterministic given a
// seed, good enough for temperature sampling's inverse-CDF draw, but
// neither thread-safe nor cryptographically useful. This process-global
// instance is a known limitation, not an oversight. Parameters are Knuth's
// MMIX 64-bit constants.
type lcg struct {
	state uint64
}

func newLCG(seed int64) *lcg {
	return &lcg{state: uint64(seed)}
}

// next returns a uniform float64 in [0, 1).
func (g *lcg) next() float64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return float64(g.state>>11) / float64(1<<53)
}

var globalLCG = newLCG(time.Now().UnixNano())
