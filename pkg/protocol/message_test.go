package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "transcript message",
			msgType: TypeTranscript,
			data:    TranscriptData{Text: "hello", Final: true},
		},
		{
			name:    "level message",
			msgType: TypeLevel,
			data:    LevelData{Level: 128},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeResponse,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestInputRoundTrip(t *testing.T) {
	pitch, rate := 0.7, 0.7
	msg, err := NewInputMessage("I feel stressed", &MetricsData{Pitch: &pitch, Rate: &rate})
	if err != nil {
		t.Fatalf("NewInputMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeInput {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeInput)
	}

	in, err := parsed.GetInputData()
	if err != nil {
		t.Fatalf("GetInputData() error = %v", err)
	}
	if in.Text != "I feel stressed" {
		t.Errorf("Text = %q", in.Text)
	}
	if in.Metrics == nil || in.Metrics.Pitch == nil || *in.Metrics.Pitch != 0.7 {
		t.Errorf("Metrics.Pitch = %v, want 0.7", in.Metrics)
	}
	if in.Metrics.Volume != nil {
		t.Errorf("Metrics.Volume = %v, want nil", *in.Metrics.Volume)
	}
}

func TestResponseMessage(t *testing.T) {
	msg, err := NewResponseMessage(ResponseData{
		Input:       "hello",
		Source:      "typed",
		Text:        "Hi there",
		Emotion:     "neutral",
		Suggestions: []string{"a", "b", "c"},
		Provider:    "mock",
		LatencyMs:   12,
	})
	if err != nil {
		t.Fatalf("NewResponseMessage() error = %v", err)
	}

	data, err := msg.GetResponseData()
	if err != nil {
		t.Fatalf("GetResponseData() error = %v", err)
	}
	if data.Text != "Hi there" || data.Provider != "mock" {
		t.Errorf("data = %+v", data)
	}
	if len(data.Suggestions) != 3 {
		t.Errorf("Suggestions = %v, want 3", data.Suggestions)
	}
	if data.Command {
		t.Error("Command should be false")
	}
}

func TestStateAndErrorMessages(t *testing.T) {
	msg, err := NewStateMessage("s-1", "active", true)
	if err != nil {
		t.Fatalf("NewStateMessage() error = %v", err)
	}
	state, err := msg.GetStateData()
	if err != nil {
		t.Fatalf("GetStateData() error = %v", err)
	}
	if state.SessionID != "s-1" || state.State != "active" || !state.TextOnly {
		t.Errorf("state = %+v", state)
	}

	msg, err = NewErrorMessage("synthesis", errors.New("tts: synthesis failed"))
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	e, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if e.Code != "synthesis" || e.Message != "tts: synthesis failed" {
		t.Errorf("error = %+v", e)
	}

	msg, _ = NewErrorMessage("internal", nil)
	e, _ = msg.GetErrorData()
	if e.Message != "" {
		t.Errorf("Message = %q, want empty", e.Message)
	}
}

func TestTranscriptMessage(t *testing.T) {
	msg, _ := NewTranscriptMessage("…", false)
	data, err := msg.GetTranscriptData()
	if err != nil {
		t.Fatalf("GetTranscriptData() error = %v", err)
	}
	if data.Text != "…" || data.Final {
		t.Errorf("data = %+v", data)
	}
}

func TestSpeakMessage(t *testing.T) {
	msg, err := NewSpeakMessage(24000, 1, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}
	data, err := msg.GetSpeakData()
	if err != nil {
		t.Fatalf("GetSpeakData() error = %v", err)
	}
	if data.Format != "pcm16" || data.SampleRate != 24000 || data.Channels != 1 || data.DurationMs != 1500 {
		t.Errorf("data = %+v", data)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}
	if pingData.Timestamp == 0 {
		t.Error("ping timestamp should be set")
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "invalid json", input: "not json", wantErr: true},
		{name: "missing type", input: "{}", wantErr: true},
		{name: "valid message", input: `{"type":"ping","ts":1234567890}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	msg, _ := NewLevelMessage(42)
	bytes, _ := msg.Bytes()

	var parsed map[string]any
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "level" {
		t.Errorf("type = %v, want level", parsed["type"])
	}
	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}
	data, ok := parsed["data"].(map[string]any)
	if !ok || data["level"] != float64(42) {
		t.Errorf("data = %v", parsed["data"])
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewResponseMessage(ResponseData{Text: string(make([]byte, 4096))})
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
