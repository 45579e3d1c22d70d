package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/conversation"
	"github.com/teslashibe/go-voice-agent/pkg/store"
	"github.com/teslashibe/go-voice-agent/pkg/stt"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StatePaused State = "paused"
	StateClosed State = "closed"
)

// Turn is one processed input.
type Turn struct {
	Input    string                 `json:"input"`
	Source   InputSource            `json:"source"`
	Command  bool                   `json:"command,omitempty"`
	Response *conversation.Response `json:"response"`
}

type input struct {
	text       string
	source     InputSource
	metrics    conversation.AudioMetrics
	confidence float64
	received   time.Time
	reply      chan result
}

type result struct {
	turn *Turn
	err  error
}

// Session is one live conversation between a user and an expert.
type Session struct {
	id     string
	cfg    Config
	logger *slog.Logger

	engine     *conversation.Engine
	store      store.Store
	pipeline   *audio.Pipeline
	recognizer stt.Recognizer
	adapter    *stt.Adapter
	speaker    *tts.Speaker
	metrics    *MetricsCollector

	// connectMu serializes Connect and Disconnect.
	connectMu sync.Mutex

	mu           sync.Mutex
	state        State
	textOnly     bool
	started      time.Time
	persisted    int
	pendingVoice []*store.VoiceSessionRecord
	feedback     *conversation.Feedback

	inputs  chan input
	ctx     context.Context
	cancel  context.CancelFunc
	workers *errgroup.Group
	stopped chan struct{}

	closeOnce sync.Once
	closeErr  error

	// Callbacks. Set them before Connect.
	OnTranscript  func(text string, isFinal bool)
	OnResponse    func(t *Turn)
	OnLevel       func(level float64)
	OnStateChange func(State)
	OnError       func(err error)
}

// New creates an idle session. router serves the conversation engine.
func New(router conversation.Router, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		state:   StateIdle,
		metrics: NewMetricsCollector(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.logger = s.cfg.Logger.With("component", "voice.session", "session", s.id)
	s.engine = conversation.NewEngine(router, s.cfg.Engine)
	s.inputs = make(chan input, s.cfg.QueueSize)
	s.textOnly = s.speaker == nil
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Config returns the validated configuration.
func (s *Session) Config() Config { return s.cfg }

// Engine returns the conversation engine.
func (s *Session) Engine() *conversation.Engine { return s.engine }

// Metrics returns the turn latency collector.
func (s *Session) Metrics() *MetricsCollector { return s.metrics }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TextOnly reports whether responses are no longer spoken.
func (s *Session) TextOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textOnly
}

// Feedback returns the end-of-session feedback once disconnected.
func (s *Session) Feedback() *conversation.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback
}

// Connect starts the conversation, opens capture and recognition when
// configured, and returns the expert's welcome message.
func (s *Session) Connect(ctx context.Context) (string, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	switch s.State() {
	case StateClosed:
		return "", ErrClosed
	case StateActive, StatePaused:
		return "", ErrAlreadyConnected
	}

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	var (
		welcome string
		created bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		welcome, err = s.engine.InitializeConversation(gctx, s.cfg.Expert, s.cfg.Topic, conversation.UserProfile{
			ID:   s.cfg.UserID,
			Name: s.cfg.UserName,
		})
		return err
	})
	if s.pipeline != nil {
		g.Go(func() error {
			return s.pipeline.Initialize(gctx, s.cfg.Preset)
		})
	}
	if s.store != nil {
		g.Go(func() error {
			if err := s.store.CreateSession(gctx, s.record()); err != nil {
				return err
			}
			created = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.abort(ctx, created)
		return "", err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	workers, wctx := errgroup.WithContext(s.ctx)
	s.workers = workers
	s.workers.Go(func() error { return s.loop(wctx) })

	if err := s.startAudio(); err != nil {
		s.cancel()
		_ = s.workers.Wait()
		s.abort(ctx, created)
		return "", err
	}

	s.setState(StateActive)
	s.logger.Info("session connected",
		"expert", s.cfg.Expert.Name,
		"topic", s.cfg.Topic,
		"audio", s.pipeline != nil,
		"speech", s.speaker != nil,
		"persist", s.cfg.Persist,
	)

	if s.store != nil && s.cfg.Persist == PersistPerMessage {
		if err := s.flush(ctx); err != nil {
			s.report(err)
		}
	}
	s.speak(0, welcome)
	return welcome, nil
}

func (s *Session) startAudio() error {
	if s.pipeline == nil {
		return nil
	}

	s.pipeline.OnLevel(func(level float64) {
		s.mu.Lock()
		cb := s.OnLevel
		s.mu.Unlock()
		if cb != nil {
			cb(level)
		}
	})

	if s.recognizer != nil {
		cfg := stt.DefaultConfig()
		cfg.Language = s.cfg.Language
		s.adapter = stt.NewAdapter(s.recognizer, cfg, s.cfg.Logger)
		s.adapter.OnTranscript = func(text string, _ float64, isFinal bool) {
			s.mu.Lock()
			cb := s.OnTranscript
			s.mu.Unlock()
			if cb != nil {
				cb(text, isFinal)
			}
		}
		s.adapter.OnUtterance = s.enqueueUtterance
		s.adapter.OnError = s.report
		s.adapter.Bind(s.pipeline)
	}

	if err := s.pipeline.StartRecording(s.ctx); err != nil {
		return err
	}
	if s.adapter != nil {
		// Recognition failures leave typed input working.
		_ = s.adapter.Start(s.ctx)
	}
	return nil
}

// abort releases what a failed Connect acquired.
func (s *Session) abort(ctx context.Context, created bool) {
	if s.adapter != nil {
		_ = s.adapter.Close()
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
	}
	s.engine.End()
	if created {
		status := store.StatusCompleted
		if err := s.store.UpdateSession(context.WithoutCancel(ctx), s.id, store.SessionUpdate{Status: &status}); err != nil {
			s.logger.Warn("failed to close aborted session record", "error", err)
		}
	}
}

// Submit queues typed input and waits for its turn. Slash commands are
// answered by the engine without a provider turn.
func (s *Session) Submit(ctx context.Context, text string, metrics conversation.AudioMetrics) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	in := input{
		text:     text,
		source:   SourceTyped,
		metrics:  metrics,
		received: time.Now(),
		reply:    make(chan result, 1),
	}
	if metrics.Confidence != nil {
		in.confidence = *metrics.Confidence
	}

	switch s.State() {
	case StateIdle:
		return nil, ErrNotConnected
	case StateClosed:
		return nil, ErrClosed
	}

	select {
	case s.inputs <- in:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrClosed
	}

	select {
	case r := <-in.reply:
		return r.turn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		select {
		case r := <-in.reply:
			return r.turn, r.err
		default:
			return nil, ErrClosed
		}
	}
}

// enqueueUtterance queues a final transcript. It does not wait for the
// turn.
func (s *Session) enqueueUtterance(text string, confidence float64) {
	in := input{
		text:       text,
		source:     SourceVoice,
		metrics:    conversation.AudioMetrics{Confidence: conversation.Metric(confidence)},
		confidence: confidence,
		received:   time.Now(),
		reply:      make(chan result, 1),
	}
	select {
	case s.inputs <- in:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-s.inputs:
			in.reply <- s.handle(ctx, in)
		}
	}
}

func (s *Session) handle(ctx context.Context, in input) result {
	turn := s.metrics.Begin(in.source)
	t := &Turn{Input: in.text, Source: in.source}

	if conversation.IsCommand(in.text) {
		if reply, ok := s.engine.HandleCommand(ctx, in.text); ok {
			t.Command = true
			t.Response = &conversation.Response{
				Text:    reply,
				Emotion: s.engine.Emotion(),
				Metadata: conversation.ResponseMetadata{
					ResponseTime:  time.Now(),
					ContextLength: len(s.engine.History()),
					Provider:      "command",
				},
			}
			s.metrics.MarkResponse(turn, "command", false)
			s.metrics.MarkDone(turn)
			s.deliver(t)
			return result{turn: t}
		}
	}

	resp, err := s.engine.ProcessUserInput(ctx, in.text, in.metrics)
	if err != nil {
		s.logger.Warn("turn failed", "source", in.source, "error", err)
		s.recordVoice(ctx, in, nil, err)
		s.report(err)
		return result{err: err}
	}

	t.Response = resp
	s.metrics.MarkResponse(turn, resp.Metadata.Provider, resp.Metadata.FellBack)
	s.recordVoice(ctx, in, resp, nil)
	if s.store != nil && s.cfg.Persist == PersistPerMessage {
		if err := s.flush(ctx); err != nil {
			s.report(err)
		}
	}

	s.deliver(t)
	s.speak(turn, resp.Text)
	return result{turn: t}
}

func (s *Session) deliver(t *Turn) {
	s.mu.Lock()
	cb := s.OnResponse
	s.mu.Unlock()
	if cb != nil {
		cb(t)
	}
}

// speak plays text unless the session is text-only. Turn 0 is untimed.
func (s *Session) speak(turn uint64, text string) {
	s.mu.Lock()
	textOnly := s.textOnly
	s.mu.Unlock()
	if textOnly || strings.TrimSpace(text) == "" {
		s.metrics.MarkDone(turn)
		return
	}

	u, err := s.speaker.Speak(s.ctx, text, tts.SpeakOptions{Voice: s.cfg.SpeechVoice})
	if err != nil {
		s.speechFailed(err)
		s.metrics.MarkDone(turn)
		return
	}

	s.workers.Go(func() error {
		err := u.Wait(context.Background())
		switch {
		case err == nil:
			s.metrics.MarkSpoken(turn)
		case errors.Is(err, tts.ErrSynthesis):
			s.speechFailed(err)
			s.metrics.MarkDone(turn)
		default:
			s.metrics.MarkDone(turn)
		}
		return nil
	})
}

func (s *Session) speechFailed(err error) {
	s.mu.Lock()
	already := s.textOnly
	s.textOnly = true
	s.mu.Unlock()
	if already {
		return
	}
	s.logger.Warn("speech synthesis failed, continuing text-only", "error", err)
	s.report(err)
}

func (s *Session) recordVoice(ctx context.Context, in input, resp *conversation.Response, turnErr error) {
	if s.store == nil || in.source != SourceVoice {
		return
	}

	rec := &store.VoiceSessionRecord{
		ID:             uuid.NewString(),
		SessionID:      s.id,
		UserID:         s.cfg.UserID,
		Transcription:  in.text,
		ProcessingTime: time.Since(in.received),
		Metadata: store.VoiceMetadata{
			Language:   s.cfg.Language,
			Confidence: in.confidence,
			Emotion:    string(conversation.AnalyzeEmotion(in.metrics)),
			Keywords:   conversation.ExtractKeywords(in.text),
		},
		CreatedAt: time.Now(),
	}
	if resp != nil {
		rec.AIResponse = resp.Text
		rec.Metadata.Emotion = string(resp.Emotion)
	}
	if turnErr != nil {
		rec.ErrorLog = turnErr.Error()
	}

	if s.cfg.Persist == PersistAtEnd {
		s.mu.Lock()
		s.pendingVoice = append(s.pendingVoice, rec)
		s.mu.Unlock()
		return
	}
	if err := s.store.SaveVoiceSession(ctx, rec); err != nil {
		s.logger.Warn("failed to save voice session", "error", err)
		s.report(err)
	}
}

// flush writes transcript messages not yet persisted and refreshes the
// exchange count.
func (s *Session) flush(ctx context.Context) error {
	msgs := s.engine.Transcript()

	s.mu.Lock()
	from := s.persisted
	s.mu.Unlock()
	if from > len(msgs) {
		from = len(msgs)
	}

	for _, m := range msgs[from:] {
		if err := s.store.AppendMessage(ctx, messageRecord(s.id, m)); err != nil {
			s.logger.Warn("failed to persist message", "message", m.ID, "error", err)
			return err
		}
		s.mu.Lock()
		s.persisted++
		s.mu.Unlock()
	}

	exchanges := s.engine.Info().Exchanges
	return s.store.UpdateSession(ctx, s.id, store.SessionUpdate{Exchanges: &exchanges})
}

// Pause stops capture and recognition. Typed input is still accepted.
func (s *Session) Pause(ctx context.Context) error {
	return s.transition(ctx, StateActive, StatePaused)
}

// Resume restarts capture and recognition after Pause.
func (s *Session) Resume(ctx context.Context) error {
	return s.transition(ctx, StatePaused, StateActive)
}

func (s *Session) transition(ctx context.Context, from, to State) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	switch st := s.State(); {
	case st == StateClosed:
		return ErrClosed
	case st == StateIdle:
		return ErrNotConnected
	case st == to:
		return nil
	case st != from:
		return ErrNotConnected
	}

	if s.pipeline != nil {
		var err error
		if to == StatePaused {
			if s.adapter != nil {
				_ = s.adapter.Stop()
			}
			err = s.pipeline.Pause()
		} else {
			err = s.pipeline.Resume()
			if s.adapter != nil {
				_ = s.adapter.Start(s.ctx)
			}
		}
		if err != nil && !errors.Is(err, audio.ErrInvalidTransition) {
			return err
		}
	}

	s.setState(to)
	if s.store != nil {
		status := store.StatusActive
		if to == StatePaused {
			status = store.StatusPaused
		}
		if err := s.store.UpdateSession(ctx, s.id, store.SessionUpdate{Status: &status}); err != nil {
			s.report(err)
		}
	}
	return nil
}

// Disconnect ends the session: in-flight work is cancelled, capture is
// released, the engine is ended and the final record is persisted. It
// returns the session feedback and is safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) (*conversation.Feedback, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.Feedback(), s.closeErr
}

func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	s.mu.Unlock()

	if prev == StateIdle {
		close(s.stopped)
		s.engine.End()
		return nil
	}

	s.cancel()
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			s.logger.Debug("recognizer stop", "error", err)
		}
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
	}
	if s.speaker != nil {
		s.speaker.Cancel()
	}
	_ = s.workers.Wait()
	close(s.stopped)

	s.engine.End()
	fb := s.engine.GenerateFeedback(ctx)
	s.mu.Lock()
	s.feedback = &fb
	s.mu.Unlock()
	s.notifyState(StateClosed)

	s.logger.Info("session disconnected",
		"duration", fb.Duration.Round(time.Second),
		"exchanges", s.engine.Info().Exchanges,
		"text_only", s.TextOnly(),
	)

	if s.store == nil {
		return nil
	}
	return s.persistFinal(ctx, fb)
}

func (s *Session) persistFinal(ctx context.Context, fb conversation.Feedback) error {
	var errs []error
	if err := s.flush(ctx); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	pending := s.pendingVoice
	s.pendingVoice = nil
	s.mu.Unlock()
	for _, rec := range pending {
		if err := s.store.SaveVoiceSession(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	info := s.engine.Info()
	status := store.StatusCompleted
	end := time.Now()
	if err := s.store.UpdateSession(ctx, s.id, store.SessionUpdate{
		Status:    &status,
		Summary:   &fb.Summary,
		Duration:  &fb.Duration,
		EndTime:   &end,
		Exchanges: &info.Exchanges,
	}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Export renders the session transcript.
func (s *Session) Export(format conversation.Format) ([]byte, error) {
	return s.engine.Export(format)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notifyState(st)
}

func (s *Session) notifyState(st State) {
	s.mu.Lock()
	cb := s.OnStateChange
	s.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (s *Session) report(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	cb := s.OnError
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (s *Session) record() *store.SessionRecord {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return &store.SessionRecord{
		ID:             s.id,
		UserID:         s.cfg.UserID,
		Expert:         s.cfg.Expert.Name,
		Topic:          s.cfg.Topic,
		CoachingOption: s.cfg.CoachingOption,
		Status:         store.StatusActive,
		StartTime:      started,
	}
}

func messageRecord(sessionID string, m conversation.Message) *store.MessageRecord {
	rec := &store.MessageRecord{
		ID:        m.ID,
		SessionID: sessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if md := m.Metadata; md != nil {
		rec.Emotion = string(md.Emotion)
		rec.Confidence = md.Confidence
		rec.Model = md.Model
	}
	return rec
}
