package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
)

// InterimText is the placeholder interim result emitted while an utterance
// is being captured.
const InterimText = "…"

// WhisperConfig configures the Whisper recognizer.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// SpeechThreshold is the RMS level (0..1) above which a chunk counts
	// as speech.
	SpeechThreshold float64

	// SilenceGap ends an utterance after this much trailing silence.
	SilenceGap time.Duration

	// MinSpeech drops utterances shorter than this.
	MinSpeech time.Duration

	// MaxUtterance forces a cut for very long speech.
	MaxUtterance time.Duration
}

// DefaultWhisperConfig returns defaults for whisper-1.
func DefaultWhisperConfig() WhisperConfig {
	return WhisperConfig{
		Model:           openai.Whisper1,
		SpeechThreshold: 0.01,
		SilenceGap:      700 * time.Millisecond,
		MinSpeech:       250 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		Logger:          slog.Default(),
	}
}

type utterance struct {
	samples    []int16
	sampleRate int
}

// Whisper segments captured audio on trailing silence and transcribes each
// utterance with the OpenAI audio transcription endpoint.
type Whisper struct {
	cfg    WhisperConfig
	client *openai.Client
	logger *slog.Logger

	mu          sync.Mutex
	running     bool
	runCfg      Config
	results     chan Result
	queue       chan utterance
	done        chan struct{}
	cancel      context.CancelFunc
	buf         []int16
	rate        int
	speech      time.Duration
	silence     time.Duration
	interimSent bool
}

// NewWhisper creates a Whisper recognizer.
func NewWhisper(cfg WhisperConfig) *Whisper {
	d := DefaultWhisperConfig()
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = d.SpeechThreshold
	}
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = d.SilenceGap
	}
	if cfg.MinSpeech <= 0 {
		cfg.MinSpeech = d.MinSpeech
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = d.MaxUtterance
	}
	if cfg.Logger == nil {
		cfg.Logger = d.Logger
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &Whisper{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
		logger: cfg.Logger.With("component", "stt.whisper"),
	}
}

// Start begins a run. Transcription happens on a worker goroutine so Feed
// never blocks on the network.
func (w *Whisper) Start(ctx context.Context, cfg Config) (<-chan Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return w.results, nil
	}
	if strings.TrimSpace(w.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: whisper: missing API key", ErrRecognition)
	}

	wctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.runCfg = cfg
	w.results = make(chan Result, 16)
	w.queue = make(chan utterance, 4)
	w.done = make(chan struct{})
	w.cancel = cancel
	w.resetLocked()

	go w.worker(wctx, w.queue, w.results, w.done)
	return w.results, nil
}

// Feed segments audio into utterances.
func (w *Whisper) Feed(chunk audioio.Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return ErrNotStarted
	}

	samples := audioio.ToMono(chunk.Samples, chunk.Channels)
	if w.rate != 0 && w.rate != chunk.SampleRate {
		w.flushLocked()
	}
	w.rate = chunk.SampleRate
	d := audioio.Chunk{Samples: samples, SampleRate: chunk.SampleRate, Channels: 1}.Duration()

	if audioio.CalculateRMS(samples) >= w.cfg.SpeechThreshold {
		w.buf = append(w.buf, samples...)
		w.speech += d
		w.silence = 0
		if !w.interimSent && w.runCfg.InterimResults {
			w.sendLocked(Result{Text: InterimText})
			w.interimSent = true
		}
	} else if w.speech > 0 {
		w.buf = append(w.buf, samples...)
		w.silence += d
		if w.silence >= w.cfg.SilenceGap {
			w.flushLocked()
		}
	}

	if w.speech+w.silence >= w.cfg.MaxUtterance {
		w.flushLocked()
	}
	return nil
}

func (w *Whisper) flushLocked() {
	if w.speech >= w.cfg.MinSpeech {
		u := utterance{samples: w.buf, sampleRate: w.rate}
		select {
		case w.queue <- u:
		default:
			w.sendLocked(Result{Err: fmt.Errorf("%w: whisper: transcription backlog full, utterance dropped", ErrRecognition)})
		}
	}
	w.resetLocked()
}

func (w *Whisper) resetLocked() {
	w.buf = nil
	w.speech = 0
	w.silence = 0
	w.interimSent = false
}

func (w *Whisper) sendLocked(r Result) {
	select {
	case w.results <- r:
	default:
		w.logger.Debug("result channel full, dropping result", "final", r.IsFinal)
	}
}

func (w *Whisper) worker(ctx context.Context, queue <-chan utterance, results chan<- Result, done chan<- struct{}) {
	defer close(done)
	for u := range queue {
		text, conf, err := w.transcribe(ctx, u)
		if ctx.Err() != nil {
			continue
		}

		var r Result
		switch {
		case err != nil:
			r = Result{Err: fmt.Errorf("%w: whisper: %v", ErrRecognition, err)}
		case text == "":
			continue
		default:
			r = Result{Text: text, Confidence: conf, IsFinal: true,
				Alternatives: []Alternative{{Text: text, Confidence: conf}}}
		}

		select {
		case results <- r:
		case <-ctx.Done():
		}
	}
}

func (w *Whisper) transcribe(ctx context.Context, u utterance) (string, float64, error) {
	req := openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(audioio.EncodeWAV(u.samples, u.sampleRate, 1)),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: isoLanguage(w.runCfg.Language),
	}

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", 0, err
	}

	conf := 1.0
	if n := len(resp.Segments); n > 0 {
		var sum float64
		for _, s := range resp.Segments {
			sum += math.Exp(s.AvgLogprob)
		}
		conf = math.Max(0, math.Min(1, sum/float64(n)))
	}

	w.logger.Debug("utterance transcribed", "latency", time.Since(start), "confidence", conf)
	return strings.TrimSpace(resp.Text), conf, nil
}

// Stop discards any partial utterance, waits for queued transcriptions to
// be abandoned and closes the result channel.
func (w *Whisper) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.resetLocked()
	close(w.queue)
	cancel, done, results := w.cancel, w.done, w.results
	w.mu.Unlock()

	cancel()
	<-done
	close(results)
	return nil
}

// Name returns "whisper".
func (w *Whisper) Name() string { return "whisper" }

// isoLanguage converts a BCP-47 tag like "en-US" to the ISO-639-1 code
// the transcription API expects.
func isoLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

var _ Recognizer = (*Whisper)(nil)
