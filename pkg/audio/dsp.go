package audio

import "math"

// Compressor is a feed-forward dynamics compressor with a soft knee.
// Parameters follow the conventional threshold/knee/ratio/attack/release
// model; gain reduction is smoothed in the dB domain.
type Compressor struct {
	Threshold float64 // dBFS
	Knee      float64 // dB
	Ratio     float64
	Attack    float64 // seconds
	Release   float64 // seconds

	gainDB float64
}

// NoiseGate returns the realtime capture compressor.
func NoiseGate() *Compressor {
	return &Compressor{Threshold: -50, Knee: 40, Ratio: 12, Attack: 0.003, Release: 0.25}
}

// Leveler returns the offline enhancement compressor.
func Leveler() *Compressor {
	return &Compressor{Threshold: -24, Knee: 30, Ratio: 12, Attack: 0.003, Release: 0.25}
}

// curve returns the static output level in dB for input level x.
func (c *Compressor) curve(x float64) float64 {
	t, w, r := c.Threshold, c.Knee, c.Ratio
	switch {
	case 2*(x-t) < -w:
		return x
	case w > 0 && 2*math.Abs(x-t) <= w:
		d := x - t + w/2
		return x + (1/r-1)*d*d/(2*w)
	default:
		return t + (x-t)/r
	}
}

// Process compresses samples in place at sampleRate. State carries across
// calls so consecutive chunks are processed continuously.
func (c *Compressor) Process(samples []float64, sampleRate int) {
	if c.Ratio <= 1 || sampleRate <= 0 {
		return
	}
	attack := timeCoeff(c.Attack, sampleRate)
	release := timeCoeff(c.Release, sampleRate)

	for i, s := range samples {
		level := -120.0
		if a := math.Abs(s); a > 1e-6 {
			level = 20 * math.Log10(a)
		}
		target := c.curve(level) - level

		coeff := release
		if target < c.gainDB {
			coeff = attack
		}
		c.gainDB = coeff*c.gainDB + (1-coeff)*target
		samples[i] = s * math.Pow(10, c.gainDB/20)
	}
}

// Reset clears the envelope.
func (c *Compressor) Reset() { c.gainDB = 0 }

func timeCoeff(seconds float64, sampleRate int) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}

// Biquad is a second-order IIR filter in direct form I.
type Biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
	bypass             bool
}

// LowShelf returns a low-shelf filter (shelf slope 1).
func LowShelf(freq, gainDB float64, sampleRate int) *Biquad {
	return newShelf(freq, gainDB, sampleRate, false)
}

// HighShelf returns a high-shelf filter (shelf slope 1).
func HighShelf(freq, gainDB float64, sampleRate int) *Biquad {
	return newShelf(freq, gainDB, sampleRate, true)
}

func newShelf(freq, gainDB float64, sampleRate int, high bool) *Biquad {
	fs := float64(sampleRate)
	if sampleRate <= 0 || freq <= 0 || freq >= fs/2 {
		return &Biquad{bypass: true}
	}

	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / fs
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / 2 * math.Sqrt2
	k := 2 * math.Sqrt(a) * alpha

	var b0, b1, b2, a0, a1, a2 float64
	if high {
		b0 = a * ((a + 1) + (a-1)*cos + k)
		b1 = -2 * a * ((a - 1) + (a+1)*cos)
		b2 = a * ((a + 1) + (a-1)*cos - k)
		a0 = (a + 1) - (a-1)*cos + k
		a1 = 2 * ((a - 1) - (a+1)*cos)
		a2 = (a + 1) - (a-1)*cos - k
	} else {
		b0 = a * ((a + 1) - (a-1)*cos + k)
		b1 = 2 * a * ((a - 1) - (a+1)*cos)
		b2 = a * ((a + 1) - (a-1)*cos - k)
		a0 = (a + 1) + (a-1)*cos + k
		a1 = -2 * ((a - 1) + (a+1)*cos)
		a2 = (a + 1) + (a-1)*cos - k
	}
	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// Process filters samples in place.
func (f *Biquad) Process(samples []float64) {
	if f.bypass {
		return
	}
	for i, x := range samples {
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		samples[i] = y
	}
}

// NormalizePeak scales samples so the peak reaches target (0..1). Silence
// is left unchanged.
func NormalizePeak(samples []float64, target float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak < 1e-9 {
		return
	}
	g := target / peak
	for i := range samples {
		samples[i] *= g
	}
}

func toFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}

func toInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(s * 32768)
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
