package protocol

import "time"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewTranscriptMessage creates a transcript message
func NewTranscriptMessage(text string, final bool) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Text: text, Final: final})
}

// NewResponseMessage creates a response message
func NewResponseMessage(data ResponseData) (*Message, error) {
	return NewMessage(TypeResponse, data)
}

// NewLevelMessage creates a level message
func NewLevelMessage(level float64) (*Message, error) {
	return NewMessage(TypeLevel, LevelData{Level: level})
}

// NewStateMessage creates a state message
func NewStateMessage(sessionID, state string, textOnly bool) (*Message, error) {
	return NewMessage(TypeState, StateData{
		SessionID: sessionID,
		State:     state,
		TextOnly:  textOnly,
	})
}

// NewSpeakMessage announces PCM16 speech frames
func NewSpeakMessage(sampleRate, channels int, duration time.Duration) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   channels,
		DurationMs: duration.Milliseconds(),
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, err error) (*Message, error) {
	data := ErrorData{Code: code}
	if err != nil {
		data.Message = err.Error()
	}
	return NewMessage(TypeError, data)
}

// NewInputMessage creates an input message
func NewInputMessage(text string, metrics *MetricsData) (*Message, error) {
	return NewMessage(TypeInput, InputData{Text: text, Metrics: metrics})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetTranscriptData extracts transcript data from a message
func (m *Message) GetTranscriptData() (*TranscriptData, error) {
	var data TranscriptData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResponseData extracts response data from a message
func (m *Message) GetResponseData() (*ResponseData, error) {
	var data ResponseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakData extracts speak data from a message
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetInputData extracts input data from a message
func (m *Message) GetInputData() (*InputData, error) {
	var data InputData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
