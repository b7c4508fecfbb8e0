package speech

import "math"

// Preprocessor applies the minimal capture-side chain: a DC-offset
// high-pass filter followed by a fast-attack/slow-release compressor.
// Anything heavier adds latency the upstream noise suppression already
// pays for.
type Preprocessor struct {
	// High-pass state (one-pole).
	hpPrevIn  float64
	hpPrevOut float64
	hpAlpha   float64

	// Compressor envelope follower.
	envelope     float64
	threshold    float64
	ratio        float64
	attackCoeff  float64
	releaseCoeff float64
}

// NewPreprocessor builds the chain for the given sample rate.
func NewPreprocessor(sampleRate int) *Preprocessor {
	// ~20Hz corner, enough to kill DC drift without touching voice.
	rc := 1.0 / (2 * math.Pi * 20.0)
	dt := 1.0 / float64(sampleRate)

	return &Preprocessor{
		hpAlpha:      rc / (rc + dt),
		threshold:    0.5,
		ratio:        4.0,
		attackCoeff:  coeff(0.005, sampleRate),
		releaseCoeff: coeff(0.100, sampleRate),
	}
}

func coeff(seconds float64, sampleRate int) float64 {
	return math.Exp(-1.0 / (seconds * float64(sampleRate)))
}

// Process filters one block of 16-bit little-endian PCM in place.
func (p *Preprocessor) Process(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(uint16(pcm[i])|uint16(pcm[i+1])<<8)) / 32768.0

		// High-pass: y[n] = a*(y[n-1] + x[n] - x[n-1])
		out := p.hpAlpha * (p.hpPrevOut + sample - p.hpPrevIn)
		p.hpPrevIn = sample
		p.hpPrevOut = out

		out = p.compress(out)

		v := int16(clamp(out*32767.0, -32768, 32767))
		pcm[i] = byte(uint16(v))
		pcm[i+1] = byte(uint16(v) >> 8)
	}
}

func (p *Preprocessor) compress(sample float64) float64 {
	level := math.Abs(sample)
	if level > p.envelope {
		p.envelope = p.attackCoeff*p.envelope + (1-p.attackCoeff)*level
	} else {
		p.envelope = p.releaseCoeff*p.envelope + (1-p.releaseCoeff)*level
	}

	if p.envelope <= p.threshold {
		return sample
	}
	// Above threshold the gain follows the envelope, so transients get
	// caught quickly and the release is gentle.
	gain := (p.threshold + (p.envelope-p.threshold)/p.ratio) / p.envelope
	return sample * gain
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
