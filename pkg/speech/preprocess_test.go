package speech

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pcmFromSamples(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

func samplesFromPCM(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

func mean(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func TestHighPassRemovesDCOffset(t *testing.T) {
	p := NewPreprocessor(16000)

	// A quiet tone riding on a large DC offset.
	n := 16000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.4 + 0.05*math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	pcm := pcmFromSamples(samples)
	p.Process(pcm)
	filtered := samplesFromPCM(pcm)

	// After the filter settles, the mean of the tail should be near zero.
	tail := filtered[n/2:]
	assert.InDelta(t, 0, mean(tail), 0.01)
}

func TestCompressorTamesLoudInput(t *testing.T) {
	p := NewPreprocessor(16000)

	n := 16000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.95 * math.Sin(2*math.Pi*200*float64(i)/16000)
	}
	pcm := pcmFromSamples(samples)
	p.Process(pcm)
	out := samplesFromPCM(pcm)

	var peak float64
	for _, s := range out[n/2:] {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	// Sustained 0.95 input must come out reduced, not clipped.
	assert.Less(t, peak, 0.9)
	assert.Greater(t, peak, 0.3)
}

func TestQuietSignalPassesThrough(t *testing.T) {
	p := NewPreprocessor(16000)

	n := 16000
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.2 * math.Sin(2*math.Pi*300*float64(i)/16000)
	}
	pcm := pcmFromSamples(samples)
	p.Process(pcm)
	out := samplesFromPCM(pcm)

	var peak float64
	for _, s := range out[n/2:] {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	// Below the threshold the compressor must not touch the level.
	assert.InDelta(t, 0.2, peak, 0.03)
}
