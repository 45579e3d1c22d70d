package voice

import (
	"sync"
	"time"
)

// InputSource tells typed input from recognized speech.
type InputSource string

const (
	SourceTyped InputSource = "typed"
	SourceVoice InputSource = "voice"
)

// maxTurnHistory bounds the turns kept for averaging.
const maxTurnHistory = 100

// Metrics times one conversation turn. Latencies are measured from the
// moment the input entered the session.
type Metrics struct {
	Turn     uint64
	Source   InputSource
	Provider string
	FellBack bool

	InputTime    time.Time
	ResponseTime time.Time // engine returned a response
	SpokenTime   time.Time // playback finished, zero when not spoken

	ResponseLatency time.Duration // input to response
	SpeechLatency   time.Duration // response to end of playback
	TotalLatency    time.Duration // input to delivery
}

// MetricsCollector records per-turn latency. It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	turn    uint64
	current Metrics
	done    bool
	history []Metrics

	onUpdate func(Metrics)
}

// NewMetricsCollector creates a collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{history: make([]Metrics, 0, maxTurnHistory)}
}

// OnUpdate sets a callback fired whenever a turn is archived.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Begin starts timing a new turn and returns its number, starting at 1.
// Turn 0 is never timed. An unfinished previous turn is discarded.
func (m *MetricsCollector) Begin(source InputSource) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turn++
	m.current = Metrics{Turn: m.turn, Source: source, InputTime: time.Now()}
	m.done = false
	return m.turn
}

// MarkResponse records the engine response for turn.
func (m *MetricsCollector) MarkResponse(turn uint64, provider string, fellBack bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn == 0 || turn != m.current.Turn || m.done {
		return
	}
	m.current.Provider = provider
	m.current.FellBack = fellBack
	m.current.ResponseTime = time.Now()
	m.current.ResponseLatency = m.current.ResponseTime.Sub(m.current.InputTime)
}

// MarkSpoken records the end of playback for turn and archives it.
func (m *MetricsCollector) MarkSpoken(turn uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn == 0 || turn != m.current.Turn || m.done || m.current.ResponseTime.IsZero() {
		return
	}
	m.current.SpokenTime = time.Now()
	m.current.SpeechLatency = m.current.SpokenTime.Sub(m.current.ResponseTime)
	m.archiveLocked(m.current.SpokenTime)
}

// MarkDone archives turn without playback timing.
func (m *MetricsCollector) MarkDone(turn uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn == 0 || turn != m.current.Turn || m.done {
		return
	}
	m.archiveLocked(time.Now())
}

func (m *MetricsCollector) archiveLocked(at time.Time) {
	m.current.TotalLatency = at.Sub(m.current.InputTime)
	m.done = true
	m.history = append(m.history, m.current)
	if len(m.history) > maxTurnHistory {
		m.history = m.history[1:]
	}
	if m.onUpdate != nil {
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// Current returns the latest turn.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns mean latencies over archived turns. Speech latency is
// averaged over spoken turns only.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	spoken := 0
	for _, h := range m.history {
		avg.ResponseLatency += h.ResponseLatency
		avg.TotalLatency += h.TotalLatency
		if !h.SpokenTime.IsZero() {
			avg.SpeechLatency += h.SpeechLatency
			spoken++
		}
	}

	n := time.Duration(len(m.history))
	avg.ResponseLatency /= n
	avg.TotalLatency /= n
	if spoken > 0 {
		avg.SpeechLatency /= time.Duration(spoken)
	}
	return avg
}

// FormatLatency renders the latencies on one line.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.ResponseLatency) + " LLM | " +
		formatDuration(m.SpeechLatency) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
