package web

import (
	"context"
	"time"

	"github.com/teslashibe/go-voice-agent/pkg/audioio"
	"github.com/teslashibe/go-voice-agent/pkg/hub"
	"github.com/teslashibe/go-voice-agent/pkg/protocol"
)

// speechFrame is the length of one binary speech frame.
const speechFrame = 100 * time.Millisecond

// hubSink plays audio by streaming it to the hub's clients. Each chunk is
// announced with a speak event and then sent as PCM16 frames paced in
// real time, so cancelling playback stops the stream.
type hubSink struct {
	hub   *hub.Hub
	frame time.Duration
}

var _ audioio.Sink = (*hubSink)(nil)

func newHubSink(h *hub.Hub) *hubSink {
	return &hubSink{hub: h, frame: speechFrame}
}

// Play implements audioio.Sink.
func (k *hubSink) Play(ctx context.Context, chunk audioio.Chunk) error {
	if len(chunk.Samples) == 0 || chunk.SampleRate == 0 {
		return nil
	}
	channels := chunk.Channels
	if channels == 0 {
		channels = 1
	}

	msg, err := protocol.NewSpeakMessage(chunk.SampleRate, channels, chunk.Duration())
	if err != nil {
		return err
	}
	announce, err := msg.Bytes()
	if err != nil {
		return err
	}
	k.hub.Broadcast(hub.NewJSONMessage(announce))

	step := int(k.frame.Seconds()*float64(chunk.SampleRate)) * channels
	if step <= 0 {
		step = len(chunk.Samples)
	}

	ticker := time.NewTicker(k.frame)
	defer ticker.Stop()

	for off := 0; off < len(chunk.Samples); off += step {
		end := min(off+step, len(chunk.Samples))
		k.hub.BroadcastBinary(audioio.SamplesToBytes(chunk.Samples[off:end]))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Name implements audioio.Sink.
func (k *hubSink) Name() string { return "websocket" }

// Close implements audioio.Sink. The hub outlives the sink.
func (k *hubSink) Close() error { return nil }
