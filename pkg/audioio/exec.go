package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// captureCommand returns the default capture tool invocation for the
// current platform.
func captureCommand(cfg Config) ([]string, error) {
	if len(cfg.CaptureCommand) > 0 {
		return cfg.CaptureCommand, nil
	}
	rate := strconv.Itoa(cfg.SampleRate)
	ch := strconv.Itoa(cfg.Channels)
	switch runtime.GOOS {
	case "linux":
		args := []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch}
		if cfg.Device != "" {
			args = append(args, "-D", cfg.Device)
		}
		return args, nil
	case "darwin":
		dev := cfg.Device
		if dev == "" {
			dev = ":0"
		}
		return []string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-f", "avfoundation", "-i", dev,
			"-ac", ch, "-ar", rate, "-f", "s16le", "-"}, nil
	}
	return nil, fmt.Errorf("%w: no capture tool for %s", ErrBackendUnavailable, runtime.GOOS)
}

// playbackCommand returns the default playback tool invocation.
func playbackCommand(cfg Config, chunk Chunk) ([]string, error) {
	if len(cfg.PlaybackCommand) > 0 {
		return cfg.PlaybackCommand, nil
	}
	rate := strconv.Itoa(chunk.SampleRate)
	ch := strconv.Itoa(chunk.Channels)
	switch runtime.GOOS {
	case "linux":
		return []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch}, nil
	case "darwin":
		return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error",
			"-f", "s16le", "-ar", rate, "-ac", ch, "-i", "-"}, nil
	}
	return nil, fmt.Errorf("%w: no playback tool for %s", ErrBackendUnavailable, runtime.GOOS)
}

// classifyExecError maps process start and exit failures onto the
// package sentinels.
func classifyExecError(err error, stderr string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case errors.Is(err, os.ErrPermission), isPermissionMessage(stderr):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(stderr, err))
	}
	return fmt.Errorf("audioio: %s: %w", firstLine(stderr, err), err)
}

func firstLine(stderr string, err error) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err.Error()
	}
	if i := strings.IndexByte(stderr, '\n'); i >= 0 {
		return stderr[:i]
	}
	return stderr
}

// CommandSource captures audio by reading raw PCM from a child process.
type CommandSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	streamCh chan Chunk
	done     chan struct{}
	err      error
	stderr   bytes.Buffer
}

// NewCommandSource creates a source that runs the platform capture tool.
func NewCommandSource(cfg Config, logger *slog.Logger) *CommandSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.exec_source"),
		streamCh: make(chan Chunk),
		done:     make(chan struct{}),
	}
}

// Start launches the capture process.
func (s *CommandSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	argv, err := captureCommand(s.cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	s.stderr.Reset()
	cmd.Stderr = &lockedWriter{mu: &s.mu, buf: &s.stderr}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("audioio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return classifyExecError(err, "")
	}

	s.cmd = cmd
	s.cancel = cancel
	s.running = true
	s.err = nil
	s.streamCh = make(chan Chunk, 10)
	s.done = make(chan struct{})

	go s.readLoop(cctx, stdout, s.streamCh, s.done)

	s.logger.Info("capture started", "command", argv[0], "sample_rate", s.cfg.SampleRate, "device", s.cfg.Device)
	return nil
}

func (s *CommandSource) readLoop(ctx context.Context, r io.Reader, out chan<- Chunk, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 2 {
			chunk := ChunkFromBytes(buf[:n-n%2], s.cfg.SampleRate, s.cfg.Channels)
			select {
			case out <- chunk:
			case <-ctx.Done():
			default:
				s.logger.Debug("capture buffer full, dropping chunk")
			}
		}
		if err != nil {
			s.finish(ctx)
			return
		}
	}
}

// finish records why capture ended.
func (s *CommandSource) finish(ctx context.Context) {
	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if ctx.Err() != nil {
		return
	}
	if waitErr == nil {
		waitErr = io.EOF
	}
	s.err = classifyExecError(waitErr, s.stderr.String())
	s.logger.Warn("capture ended", "error", s.err)
}

// Stream returns the chunk channel.
func (s *CommandSource) Stream() <-chan Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Err returns the error that ended capture.
func (s *CommandSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop kills the capture process and waits for the reader to exit.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("capture stopped")
	return nil
}

// Config returns the audio configuration.
func (s *CommandSource) Config() Config { return s.cfg }

// Name returns "exec".
func (s *CommandSource) Name() string { return string(BackendExec) }

// Close stops capture; the source cannot be restarted.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// CommandSink plays each chunk through a short-lived playback process.
type CommandSink struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewCommandSink creates a sink that runs the platform playback tool.
func NewCommandSink(cfg Config, logger *slog.Logger) *CommandSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSink{cfg: cfg, logger: logger.With("component", "audioio.exec_sink")}
}

// Play pipes chunk into the playback tool and waits for it to exit.
func (s *CommandSink) Play(ctx context.Context, chunk Chunk) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(chunk.Samples) == 0 {
		return nil
	}
	if chunk.SampleRate == 0 {
		chunk.SampleRate = s.cfg.SampleRate
	}
	if chunk.Channels == 0 {
		chunk.Channels = s.cfg.Channels
	}

	argv, err := playbackCommand(s.cfg, chunk)
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(chunk.Bytes())
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyExecError(err, stderr.String())
	}
	return nil
}

// Name returns "exec".
func (s *CommandSink) Name() string { return string(BackendExec) }

// Close marks the sink closed.
func (s *CommandSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var (
	_ Source = (*CommandSource)(nil)
	_ Sink   = (*CommandSink)(nil)
)
