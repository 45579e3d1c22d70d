package tts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/audio"
	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/tts"
)

func newSpeaker(t *testing.T, provider tts.Provider, pace float64) (*tts.Speaker, *audioio.MockSink) {
	t.Helper()
	sink := audioio.NewMockSink(audioio.DefaultConfig(), nil)
	sink.SetPace(pace)
	player := audio.NewPlayer(sink, nil)
	return tts.NewSpeaker(provider, player, nil), sink
}

func waitUtterance(t *testing.T, u *tts.Utterance) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := u.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("utterance did not finish")
	}
	return err
}

func TestSpeakerPlaysUtterance(t *testing.T) {
	mock := tts.NewMock()
	speaker, sink := newSpeaker(t, mock, 0)

	var started, ended string
	endCh := make(chan error, 1)
	speaker.OnStart = func(text string) { started = text }
	speaker.OnEnd = func(text string, err error) { ended = text; endCh <- err }

	u, err := speaker.Speak(context.Background(), "  Take a slow breath.  ", tts.SpeakOptions{Voice: "nova"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := waitUtterance(t, u); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := <-endCh; err != nil {
		t.Fatalf("OnEnd error: %v", err)
	}

	if started != "Take a slow breath." || ended != started {
		t.Errorf("callbacks got %q / %q", started, ended)
	}
	played := sink.Played()
	if len(played) != 1 {
		t.Fatalf("expected 1 chunk played, got %d", len(played))
	}
	if played[0].SampleRate != 24000 || played[0].Channels != 1 {
		t.Errorf("unexpected format %d Hz x%d", played[0].SampleRate, played[0].Channels)
	}
	if speaker.Speaking() {
		t.Error("expected speaker idle after completion")
	}

	last := mock.LastCall()
	if last.Request.Voice != "nova" || last.Request.Speed != 1 || last.Request.Pitch != 1 {
		t.Errorf("unexpected request %+v", last.Request)
	}
}

func TestSpeakerVoiceFallback(t *testing.T) {
	tests := []struct {
		voice string
		want  string
	}{
		{"", tts.DefaultVoice},
		{"Calm and soothing", tts.DefaultVoice},
		{"NOVA", "nova"},
		{" echo ", "echo"},
	}
	for _, tt := range tests {
		t.Run(tt.voice, func(t *testing.T) {
			mock := tts.NewMock()
			speaker := tts.NewSpeaker(mock, nil, nil)
			u, _ := speaker.Speak(context.Background(), "hi", tts.SpeakOptions{Voice: tt.voice})
			if err := waitUtterance(t, u); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if got := mock.LastCall().Request.Voice; got != tt.want {
				t.Errorf("voice %q resolved to %q, want %q", tt.voice, got, tt.want)
			}
		})
	}
}

func TestSpeakerRateClamp(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{0, 1},
		{0.1, tts.MinRate},
		{1.5, 1.5},
		{10, tts.MaxRate},
	}
	for _, tt := range tests {
		mock := tts.NewMock()
		speaker := tts.NewSpeaker(mock, nil, nil)
		u, _ := speaker.Speak(context.Background(), "hello", tts.SpeakOptions{Rate: tt.rate})
		if err := waitUtterance(t, u); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if got := mock.LastCall().Request.Speed; got != tt.want {
			t.Errorf("rate %v: got speed %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestSpeakerVolumeScalesSamples(t *testing.T) {
	mock := tts.NewMock()
	mock.SynthesizeFunc = func(ctx context.Context, req tts.Request) (*tts.AudioResult, error) {
		samples := make([]int16, 240)
		for i := range samples {
			samples[i] = 1000
		}
		return &tts.AudioResult{
			Audio:  audioio.SamplesToBytes(samples),
			Format: tts.AudioFormat{Encoding: tts.EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16},
		}, nil
	}
	speaker, sink := newSpeaker(t, mock, 0)

	u, _ := speaker.Speak(context.Background(), "quiet please", tts.SpeakOptions{Volume: 0.5})
	if err := waitUtterance(t, u); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	played := sink.Played()
	if len(played) != 1 || played[0].Samples[0] != 500 {
		t.Fatalf("expected samples scaled to 500, got %+v", played)
	}
}

func TestSpeakerNewUtteranceCancelsPrevious(t *testing.T) {
	speaker, _ := newSpeaker(t, tts.NewMock(), 1)

	first, _ := speaker.Speak(context.Background(), strings.Repeat("long sentence ", 20), tts.SpeakOptions{})
	time.Sleep(20 * time.Millisecond)
	second, _ := speaker.Speak(context.Background(), "short", tts.SpeakOptions{})

	select {
	case <-first.Done():
	default:
		t.Fatal("previous utterance must be finished before the next starts")
	}
	if err := first.Err(); !errors.Is(err, tts.ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
	if err := waitUtterance(t, second); err != nil {
		t.Errorf("second utterance: %v", err)
	}
}

func TestSpeakerCancel(t *testing.T) {
	speaker, sink := newSpeaker(t, tts.NewMock(), 1)

	u, _ := speaker.Speak(context.Background(), strings.Repeat("stretch ", 30), tts.SpeakOptions{})
	time.Sleep(20 * time.Millisecond)
	speaker.Cancel()

	if err := waitUtterance(t, u); !errors.Is(err, tts.ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
	if len(sink.Played()) != 0 {
		t.Error("cancelled playback must not complete")
	}
}

func TestSpeakerSynthesisFailure(t *testing.T) {
	speaker := tts.NewSpeaker(tts.WithError(&tts.APIError{StatusCode: 401, Provider: "openai"}), nil, nil)
	u, err := speaker.Speak(context.Background(), "hello", tts.SpeakOptions{})
	if err != nil {
		t.Fatalf("Speak returns before synthesis: %v", err)
	}
	err = waitUtterance(t, u)
	if !errors.Is(err, tts.ErrSynthesis) {
		t.Errorf("expected ErrSynthesis, got %v", err)
	}
}

func TestSpeakerRejectsUndecodableAudio(t *testing.T) {
	mock := tts.NewMock()
	mock.SynthesizeFunc = func(ctx context.Context, req tts.Request) (*tts.AudioResult, error) {
		return &tts.AudioResult{Audio: []byte{0xff, 0xfb}, Format: tts.AudioFormat{Encoding: tts.EncodingMP3}}, nil
	}
	speaker := tts.NewSpeaker(mock, nil, nil)
	u, _ := speaker.Speak(context.Background(), "hello", tts.SpeakOptions{})
	err := waitUtterance(t, u)
	if !errors.Is(err, tts.ErrSynthesis) {
		t.Errorf("expected ErrSynthesis, got %v", err)
	}
}

func TestSpeakerEmptyText(t *testing.T) {
	mock := tts.NewMock()
	speaker := tts.NewSpeaker(mock, nil, nil)
	u, err := speaker.Speak(context.Background(), "   ", tts.SpeakOptions{})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	select {
	case <-u.Done():
	default:
		t.Fatal("empty utterance should be done immediately")
	}
	if mock.CallCount("Synthesize") != 0 {
		t.Error("empty text must not reach the provider")
	}
}

func TestSpeakerWaitHonoursContext(t *testing.T) {
	speaker, _ := newSpeaker(t, tts.NewMock(), 1)
	u, _ := speaker.Speak(context.Background(), strings.Repeat("wait ", 40), tts.SpeakOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := u.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	u.Cancel()
	<-u.Done()
}
