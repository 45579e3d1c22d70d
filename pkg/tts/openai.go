package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const providerOpenAI = "openai"

// OpenAI models.
const (
	ModelTTS1      = "tts-1"
	ModelTTS1HD    = "tts-1-hd"
	ModelGPT4oMini = "gpt-4o-mini-tts"
)

// OpenAI implements Provider with the OpenAI speech endpoint.
type OpenAI struct {
	config *Config
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI TTS provider. Output is requested as raw
// 24 kHz PCM so Speaker can play it without a decoder.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = ModelTTS1
	cfg.Voice = DefaultVoice
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Voice = ResolveVoice(cfg.Voice, OpenAIVoices, DefaultVoice)

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = cfg.client()

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(oc),
		logger: cfg.Logger.With("component", "tts.openai"),
	}, nil
}

// Synthesize converts a request to audio.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	start := time.Now()

	var audio []byte
	err := o.withRetry(ctx, func() error {
		resp, err := o.client.CreateSpeech(ctx, o.speechRequest(req))
		if err != nil {
			return err
		}
		defer resp.Close()
		audio, err = io.ReadAll(resp)
		return err
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	format := o.outputFormat()

	o.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.voice(req.Voice),
	)

	res := &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(req.Text),
		LatencyMs: latency,
	}
	if format.Encoding.IsPCM() {
		res.Duration = pcmDuration(len(audio), format.SampleRate)
	}
	return res, nil
}

// Stream returns the synthesized audio as a single-chunk stream; the
// speech endpoint is consumed whole.
func (o *OpenAI) Stream(ctx context.Context, req Request) (AudioStream, error) {
	result, err := o.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}

// Health checks API connectivity by listing models.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return o.wrap(err)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	return nil
}

// Voice returns the configured default voice.
func (o *OpenAI) Voice() string {
	return o.config.Voice
}

func (o *OpenAI) voice(v string) string {
	return ResolveVoice(v, OpenAIVoices, o.config.Voice)
}

func (o *OpenAI) speechRequest(req Request) openai.CreateSpeechRequest {
	r := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(o.voice(req.Voice)),
		ResponseFormat: o.responseFormat(),
	}
	if req.Speed > 0 {
		r.Speed = clamp(req.Speed, MinRate, MaxRate)
	}
	return r
}

func (o *OpenAI) responseFormat() openai.SpeechResponseFormat {
	switch o.config.OutputFormat {
	case EncodingWAV:
		return openai.SpeechResponseFormat("wav")
	case EncodingMP3:
		return openai.SpeechResponseFormat("mp3")
	default:
		return openai.SpeechResponseFormat("pcm")
	}
}

// outputFormat describes what the endpoint returns. The "pcm" format is
// always 24 kHz regardless of the configured PCM rate.
func (o *OpenAI) outputFormat() AudioFormat {
	switch o.config.OutputFormat {
	case EncodingWAV:
		return AudioFormat{Encoding: EncodingWAV, SampleRate: 24000, Channels: 1, BitDepth: 16}
	case EncodingMP3:
		return AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1}
	default:
		return AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16}
	}
}

// withRetry runs fn, retrying rate limits and server errors.
func (o *OpenAI) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = o.wrap(err)

		var apiErr *APIError
		if !errors.As(lastErr, &apiErr) || !apiErr.IsRetryable() {
			return lastErr
		}
		o.logger.Warn("retrying request", "attempt", attempt+1, "status", apiErr.StatusCode)
	}
	return lastErr
}

// wrap converts go-openai errors into APIError.
func (o *OpenAI) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Code: code, Provider: providerOpenAI}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Provider: providerOpenAI}
	}
	return WrapError(providerOpenAI, err)
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	chunk := s.data[s.offset:]
	s.offset = len(s.data)
	return chunk, nil
}

func (s *bufferStream) Close() error { return nil }

func (s *bufferStream) Format() AudioFormat { return s.format }

var _ Provider = (*OpenAI)(nil)
