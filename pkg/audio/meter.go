package audio

import "math"

const (
	meterWindow    = 2048
	meterSmoothing = 0.8
	meterMinDB     = -100.0
	meterMaxDB     = -30.0
)

// Meter is an analyser-style level meter. It keeps the most recent 2048
// samples and reports a smoothed level on a 0..255 scale.
type Meter struct {
	buf   []float64
	pos   int
	full  bool
	level float64
}

// NewMeter returns an empty meter.
func NewMeter() *Meter {
	return &Meter{buf: make([]float64, meterWindow)}
}

// Write adds samples to the analysis window.
func (m *Meter) Write(samples []float64) {
	for _, s := range samples {
		m.buf[m.pos] = s
		m.pos++
		if m.pos == len(m.buf) {
			m.pos = 0
			m.full = true
		}
	}
}

// Poll recomputes the smoothed level from the current window and returns it.
func (m *Meter) Poll() float64 {
	n := m.pos
	if m.full {
		n = len(m.buf)
	}

	raw := 0.0
	if n > 0 {
		var sum float64
		for _, s := range m.buf[:n] {
			sum += s * s
		}
		if rms := math.Sqrt(sum / float64(n)); rms > 0 {
			db := 20 * math.Log10(rms)
			raw = 255 * (db - meterMinDB) / (meterMaxDB - meterMinDB)
			raw = math.Max(0, math.Min(255, raw))
		}
	}

	m.level = meterSmoothing*m.level + (1-meterSmoothing)*raw
	return m.level
}

// Level returns the last polled level.
func (m *Meter) Level() float64 { return m.level }

// Reset clears the window and level.
func (m *Meter) Reset() {
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.pos, m.full, m.level = 0, false, 0
}
