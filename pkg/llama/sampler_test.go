package llama

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleGreedyPicksArgmax(t *testing.T) {
	logits := []float32{0.1, 3.4, -2.0, 3.39}
	got := Sample(logits, SampleParams{Mode: SampleGreedy})
	assert.Equal(t, int32(1), got)
}

func TestSampleGreedyFirstMaxWins(t *testing.T) {
	logits := []float32{5.0, 5.0, 1.0}
	got := Sample(logits, SampleParams{Mode: SampleGreedy})
	assert.Equal(t, int32(0), got)
}

func TestSampleTemperatureZeroFallsBackToGreedy(t *testing.T) {
	logits := []float32{0.1, 9.9, 0.2}
	got := Sample(logits, SampleParams{Mode: SampleTemperature, Temperature: 0})
	assert.Equal(t, int32(1), got)
}

func TestSampleTemperatureReturnsValidIndex(t *testing.T) {
	logits := []float32{1.0, 2.0, 3.0, 4.0}
	for i := 0; i < 50; i++ {
		got := Sample(logits, SampleParams{Mode: SampleTemperature, Temperature: 0.8})
		assert.GreaterOrEqual(t, got, int32(0))
		assert.Less(t, got, int32(len(logits)))
	}
}

func TestArgmaxSingleElement(t *testing.T) {
	assert.Equal(t, int32(0), argmax([]float32{42.0}))
}

func TestLCGDeterministicGivenSeed(t *testing.T) {
	a := newLCG(1)
	b := newLCG(1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.next(), b.next())
	}
}

func TestLCGProducesValuesInUnitRange(t *testing.T) {
	g := newLCG(42)
	for i := 0; i < 1000; i++ {
		v := g.next()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}
