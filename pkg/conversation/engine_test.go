package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/inference"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 19, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeRouter struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error)
	calls [][]inference.Message
}

func (f *fakeRouter) GenerateCompletion(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]inference.Message(nil), msgs...))
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, msgs, opts)
}

func (f *fakeRouter) call(i int) []inference.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func maya() *Expert {
	return &Expert{
		Name:        "Maya Patel",
		Expertise:   []string{"Language Skills", "Meditation & Wellness", "Career Coaching"},
		Personality: "Empathetic and patient, creates safe learning environment",
		Voice:       "calm",
		Languages:   []string{"English", "Hindi", "Bengali", "Tamil"},
	}
}

func newMockEngine(t *testing.T, window int) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.ContextWindow = window
	cfg.Now = clock.Now
	return NewEngine(inference.NewRouter(inference.NewRegistry()), cfg), clock
}

func mustInit(t *testing.T, e *Engine, expert *Expert, topic string) string {
	t.Helper()
	welcome, err := e.InitializeConversation(context.Background(), expert, topic, UserProfile{ID: "u1"})
	if err != nil {
		t.Fatalf("InitializeConversation: %v", err)
	}
	return welcome
}

func mustProcess(t *testing.T, e *Engine, input string, m AudioMetrics) *Response {
	t.Helper()
	resp, err := e.ProcessUserInput(context.Background(), input, m)
	if err != nil {
		t.Fatalf("ProcessUserInput(%q): %v", input, err)
	}
	return resp
}

func TestEndToEndSession(t *testing.T) {
	e, _ := newMockEngine(t, DefaultContextWindow)

	if welcome := mustInit(t, e, maya(), "Meditation"); welcome == "" {
		t.Error("empty welcome")
	}
	if e.State() != StateActive {
		t.Errorf("state = %s, want active", e.State())
	}
	if n := len(e.History()); n != 1 {
		t.Errorf("history after init = %d, want 1", n)
	}

	resp := mustProcess(t, e, "Hello, I'm stressed", AudioMetrics{Pitch: Metric(0.7), Rate: Metric(0.7)})
	if resp.Emotion != EmotionSad {
		t.Errorf("emotion = %s, want sad", resp.Emotion)
	}
	if resp.Text == "" || len(resp.Suggestions) != 3 {
		t.Errorf("text %q suggestions %v", resp.Text, resp.Suggestions)
	}
	if resp.Metadata.Provider != "mock" || resp.Metadata.ContextLength != 3 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
	if n := len(e.History()); n != 3 {
		t.Errorf("history = %d, want 3", n)
	}

	profile := e.LearningProfile()
	for _, kw := range []string{"stressed", "hello,"} {
		if _, ok := profile[kw]; !ok {
			t.Errorf("learning profile missing %q: %v", kw, profile)
		}
	}

	if got := e.ResetConversation(); got != ResetMessage {
		t.Errorf("ResetConversation = %q", got)
	}
	if len(e.History()) != 0 || len(e.LearningProfile()) != 0 {
		t.Error("reset kept history or learning profile")
	}
	if e.State() != StateActive {
		t.Errorf("state after reset = %s", e.State())
	}

	resp = mustProcess(t, e, "Can we continue?", AudioMetrics{})
	if resp.Text == "" {
		t.Error("empty reply after reset")
	}
	hist := e.History()
	if len(hist) != 3 || hist[0].Role != RoleSystem {
		t.Errorf("history after reset turn = %v", ids(hist))
	}
}

func TestHistoryAlternatesAndGrows(t *testing.T) {
	e, _ := newMockEngine(t, DefaultContextWindow)
	mustInit(t, e, maya(), "Meditation")

	for k := 1; k <= DefaultContextWindow; k++ {
		mustProcess(t, e, "tell me more", AudioMetrics{})

		hist := e.History()
		if len(hist) != 1+2*k {
			t.Fatalf("turn %d: history = %d, want %d", k, len(hist), 1+2*k)
		}
		if hist[0].Role != RoleSystem {
			t.Errorf("turn %d: first message is %s", k, hist[0].Role)
		}
		for i := 1; i < len(hist); i++ {
			want := RoleUser
			if i%2 == 0 {
				want = RoleAssistant
			}
			if hist[i].Role != want {
				t.Errorf("turn %d index %d: role %s, want %s", k, i, hist[i].Role, want)
			}
		}
	}
}

func TestContextWindowInvariant(t *testing.T) {
	const n = 2
	e, _ := newMockEngine(t, n)
	mustInit(t, e, maya(), "Meditation")
	system := e.History()[0]

	for i := 0; i < 12; i++ {
		mustProcess(t, e, "question", AudioMetrics{})

		hist := e.History()
		if len(hist) > 2*n+1 {
			t.Errorf("turn %d: history = %d, want <= %d", i, len(hist), 2*n+1)
		}
		if hist[0].ID != system.ID {
			t.Errorf("turn %d: system prompt dropped", i)
		}
	}

	// The full transcript is never trimmed.
	if n := len(e.Transcript()); n != 1+2*12 {
		t.Errorf("transcript = %d, want %d", n, 1+2*12)
	}
}

func TestContextWindowResumesOnUser(t *testing.T) {
	router := &fakeRouter{fn: func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
		return inference.Completion{Text: "noted", Provider: inference.KindMock}, nil
	}}
	cfg := DefaultConfig()
	cfg.ContextWindow = 3
	e := NewEngine(router, cfg)
	mustInit(t, e, maya(), "Meditation")

	for i := 0; i < 10; i++ {
		mustProcess(t, e, fmt.Sprintf("question %d", i), AudioMetrics{})
	}

	router.mu.Lock()
	calls := append([][]inference.Message(nil), router.calls...)
	router.mu.Unlock()
	if len(calls) < 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	for i, req := range calls[1:] {
		if len(req) < 2 {
			t.Fatalf("call %d has %d messages", i+1, len(req))
		}
		if req[0].Role != RoleSystem || req[1].Role != RoleUser {
			t.Errorf("call %d starts %s, %s; want system, user", i+1, req[0].Role, req[1].Role)
		}
		if len(req) > 2*3+1 {
			t.Errorf("call %d has %d messages, want <= 7", i+1, len(req))
		}
	}
}

func TestNewEngineFillsZeroConfig(t *testing.T) {
	e := NewEngine(inference.NewRouter(inference.NewRegistry()), Config{ContextWindow: 4})

	if e.history.Window() != 4 {
		t.Errorf("window = %d, want 4", e.history.Window())
	}
	d := DefaultConfig()
	if e.cfg.Completion != d.Completion || e.cfg.Suggestions != d.Suggestions {
		t.Errorf("options not defaulted: %+v %+v", e.cfg.Completion, e.cfg.Suggestions)
	}
	if e.cfg.Now == nil || e.logger == nil {
		t.Error("clock or logger not defaulted")
	}
	mustInit(t, e, maya(), "Meditation")
}

func TestProcessBeforeInitialize(t *testing.T) {
	e, _ := newMockEngine(t, DefaultContextWindow)
	if _, err := e.ProcessUserInput(context.Background(), "hi", AudioMetrics{}); !errors.Is(err, ErrInvalidSessionState) {
		t.Errorf("err = %v, want ErrInvalidSessionState", err)
	}
}

func TestProcessAfterEnd(t *testing.T) {
	e, _ := newMockEngine(t, DefaultContextWindow)
	mustInit(t, e, maya(), "Meditation")

	e.End()
	if e.State() != StateEnded {
		t.Errorf("state = %s, want ended", e.State())
	}
	if _, err := e.ProcessUserInput(context.Background(), "hi", AudioMetrics{}); !errors.Is(err, ErrInvalidSessionState) {
		t.Errorf("err = %v, want ErrInvalidSessionState", err)
	}
}

func TestInitializeRequiresExpertAndTopic(t *testing.T) {
	ctx := context.Background()
	e, _ := newMockEngine(t, DefaultContextWindow)

	if _, err := e.InitializeConversation(ctx, nil, "Meditation", UserProfile{}); !errors.Is(err, ErrInvalidSessionState) {
		t.Errorf("nil expert err = %v", err)
	}
	if _, err := e.InitializeConversation(ctx, maya(), "", UserProfile{}); !errors.Is(err, ErrInvalidSessionState) {
		t.Errorf("empty topic err = %v", err)
	}
	if e.State() != StateUninitialized {
		t.Errorf("state = %s, want uninitialized", e.State())
	}
}

func TestDurationMonotonicAndUnaffectedByReset(t *testing.T) {
	ctx := context.Background()
	e, clock := newMockEngine(t, DefaultContextWindow)
	mustInit(t, e, maya(), "Meditation")

	clock.Advance(3 * time.Second)
	fb := e.GenerateFeedback(ctx)
	if fb.Duration < 3*time.Second || fb.DurationSeconds() != 3 {
		t.Errorf("feedback duration = %v", fb.Duration)
	}

	prev := e.Duration()
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		d := e.Duration()
		if d < prev {
			t.Errorf("duration went backwards: %v < %v", d, prev)
		}
		prev = d
	}

	e.ResetConversation()
	if e.Duration() != prev {
		t.Errorf("reset changed duration: %v != %v", e.Duration(), prev)
	}

	e.End()
	frozen := e.Duration()
	clock.Advance(time.Minute)
	if e.Duration() != frozen {
		t.Errorf("duration kept running after End: %v", e.Duration())
	}
}

func TestDurationRealClock(t *testing.T) {
	e := NewEngine(inference.NewRouter(inference.NewRegistry()), DefaultConfig())
	mustInit(t, e, maya(), "Meditation")

	time.Sleep(20 * time.Millisecond)
	fb := e.GenerateFeedback(context.Background())
	if fb.Duration < 20*time.Millisecond {
		t.Errorf("feedback duration = %v", fb.Duration)
	}
	if e.Duration() < fb.Duration {
		t.Errorf("duration %v < feedback %v", e.Duration(), fb.Duration)
	}
}

func TestSteeringNoteSentButNotPersisted(t *testing.T) {
	router := &fakeRouter{fn: func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
		return inference.Completion{Text: "Let's go!", Provider: inference.KindOpenAI}, nil
	}}
	e := NewEngine(router, DefaultConfig())
	mustInit(t, e, maya(), "Meditation")

	resp := mustProcess(t, e, "This is amazing", AudioMetrics{Pitch: Metric(1.4), Rate: Metric(1.3)})
	if resp.Emotion != EmotionExcited {
		t.Errorf("emotion = %s, want excited", resp.Emotion)
	}

	// call 0 is the welcome, call 1 the turn, call 2 the suggestions
	note := SteeringNote(EmotionExcited)
	turn := router.call(1)
	if last := turn[len(turn)-1]; last.Role != inference.RoleSystem || last.Content != note {
		t.Errorf("last request message = %+v, want steering note", last)
	}

	hist := e.History()
	for _, m := range hist {
		if m.Content == note {
			t.Error("steering note stored in history")
		}
	}
	if len(hist) != 3 {
		t.Errorf("history = %d, want 3", len(hist))
	}
}

func TestWelcomePromptNotInHistory(t *testing.T) {
	router := &fakeRouter{fn: func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
		return inference.Completion{Text: "Welcome!", Provider: inference.KindMock}, nil
	}}
	e := NewEngine(router, DefaultConfig())
	if welcome := mustInit(t, e, maya(), "Meditation"); welcome != "Welcome!" {
		t.Errorf("welcome = %q", welcome)
	}

	req := router.call(0)
	if len(req) != 2 {
		t.Fatalf("welcome request = %d messages, want 2", len(req))
	}
	if req[1].Content != WelcomePrompt(maya(), "Meditation") {
		t.Errorf("welcome prompt = %q", req[1].Content)
	}

	if n := len(e.History()); n != 1 {
		t.Errorf("history = %d, want 1", n)
	}
	tr := e.Transcript()
	if len(tr) != 1 || tr[0].Role != RoleAssistant {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestResetCancelsInFlightCompletion(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	router := &fakeRouter{}
	router.fn = func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
		if inference.LastUserContent(msgs) == "slow question" {
			close(started)
			<-ctx.Done()
			return inference.Completion{}, ctx.Err()
		}
		return inference.Completion{Text: "ok", Provider: inference.KindMock}, nil
	}
	e := NewEngine(router, DefaultConfig())
	mustInit(t, e, maya(), "Meditation")

	errCh := make(chan error, 1)
	go func() {
		_, err := e.ProcessUserInput(ctx, "slow question", AudioMetrics{})
		errCh <- err
	}()

	<-started
	e.ResetConversation()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrInvalidSessionState) {
			t.Errorf("err = %v, want ErrInvalidSessionState", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight completion was not cancelled")
	}
	if n := len(e.History()); n != 0 {
		t.Errorf("history after reset = %d", n)
	}

	mustProcess(t, e, "after reset", AudioMetrics{})
	if n := len(e.History()); n != 3 {
		t.Errorf("history = %d, want 3", n)
	}
}

func TestRouterErrorRollsBackUserMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	router := &fakeRouter{fn: func(ctx context.Context, msgs []inference.Message, opts inference.Options) (inference.Completion, error) {
		if err := ctx.Err(); err != nil {
			return inference.Completion{}, err
		}
		return inference.Completion{Text: "ok", Provider: inference.KindMock}, nil
	}}
	e := NewEngine(router, DefaultConfig())
	mustInit(t, e, maya(), "Meditation")

	cancel()
	if _, err := e.ProcessUserInput(ctx, "hello", AudioMetrics{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(e.History()) != 1 || len(e.Transcript()) != 1 {
		t.Errorf("history %d transcript %d, want 1 and 1", len(e.History()), len(e.Transcript()))
	}
}

func TestConcurrentInputIsSerialized(t *testing.T) {
	ctx := context.Background()
	e, _ := newMockEngine(t, 50)
	mustInit(t, e, maya(), "Meditation")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ProcessUserInput(ctx, "parallel question", AudioMetrics{}); err != nil {
				t.Errorf("ProcessUserInput: %v", err)
			}
		}()
	}
	wg.Wait()

	hist := e.History()
	if len(hist) != 17 {
		t.Fatalf("history = %d, want 17", len(hist))
	}
	for i := 1; i < len(hist); i += 2 {
		if hist[i].Role != RoleUser || hist[i+1].Role != RoleAssistant {
			t.Errorf("messages %d,%d are %s,%s", i, i+1, hist[i].Role, hist[i+1].Role)
		}
	}
}

func TestReinitializeReplacesSession(t *testing.T) {
	e, _ := newMockEngine(t, DefaultContextWindow)
	mustInit(t, e, maya(), "Meditation")
	mustProcess(t, e, "first session words", AudioMetrics{})

	other := &Expert{Name: "Alex Rodriguez", Personality: "Dynamic and motivating"}
	mustInit(t, e, other, "Mock Interview")

	if n := len(e.History()); n != 1 {
		t.Errorf("history = %d, want 1", n)
	}
	if n := len(e.LearningProfile()); n != 0 {
		t.Errorf("learning profile kept %d keywords", n)
	}
	if got := e.Info().Expert; got != "Alex Rodriguez" {
		t.Errorf("expert = %q", got)
	}
}
