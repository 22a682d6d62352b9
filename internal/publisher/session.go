package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/imagepub/internal/image"
)

// State is a Session lifecycle state.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateConnecting        State = "connecting"
	StateConnected         State = "connected"
	StatePublisherStarting State = "publisher_starting"
	StateReady             State = "ready"
	StatePublishing        State = "publishing"
	StateTerminating       State = "terminating"
	StateClosed            State = "closed"
)

// Default session settings.
const (
	defaultDelay           = 100 * time.Millisecond
	defaultShutdownTimeout = 10 * time.Second
)

// Logger is the logging surface used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config controls a Session.
type Config struct {
	// TopicPrefix is prepended to every filename. Defaults to solace/images.
	TopicPrefix string

	// Delay is the pause after each publish. Zero disables pacing.
	Delay time.Duration

	// Debug logs payload samples and format diagnostics for every file.
	Debug bool

	// ShutdownTimeout bounds Terminate and Disconnect. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the stock settings: solace/images prefix and a
// 100ms delay between publishes.
func DefaultConfig() Config {
	return Config{
		TopicPrefix:     image.DefaultTopicPrefix,
		Delay:           defaultDelay,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Result summarises one run.
type Result struct {
	// Published counts messages handed to the transport without error.
	Published int

	// Skipped counts files that could not be read.
	Skipped int

	// Failed counts publish failures, synchronous or reported later by
	// the transport before shutdown completed.
	Failed int
}

// Session publishes a list of image files over one Transport.
//
// A Session is single-use: Run drives the transport through
// Connect, StartPublisher, one Publish per file, then Terminate and
// Disconnect. Cleanup happens on every exit path once Connect has been
// attempted, including cancellation and panics inside the loop.
type Session struct {
	transport Transport
	cfg       Config
	encoder   *image.Encoder
	logger    Logger

	events    ServiceEventListener
	failures  PublishFailureListener
	recorders []Recorder

	state   State
	stateMu sync.RWMutex

	ready       atomic.Bool
	failedCount atomic.Int64

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSession creates a Session over transport. Call the Set* methods
// before Run to attach listeners, a logger and recorders.
func NewSession(transport Transport, cfg Config) *Session {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = image.DefaultTopicPrefix
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Session{
		transport: transport,
		cfg:       cfg,
		encoder:   image.NewEncoder(logger),
		logger:    logger,
		state:     StateDisconnected,
		sleep:     sleepContext,
	}
}

// SetLogger sets the logger. Listeners that were not set explicitly log
// through it too.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
	s.encoder = image.NewEncoder(logger)
}

// SetServiceEventListener replaces the default logging connection listener.
func (s *Session) SetServiceEventListener(l ServiceEventListener) {
	s.events = l
}

// SetPublishFailureListener replaces the default logging failure listener.
func (s *Session) SetPublishFailureListener(l PublishFailureListener) {
	s.failures = l
}

// AddRecorder registers a telemetry recorder.
func (s *Session) AddRecorder(r Recorder) {
	s.recorders = append(s.recorders, r)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.stateMu.Unlock()

	s.logger.Debug("session state changed", "from", prev, "to", state)
}

// Run publishes files in order and returns once the transport has been
// released.
//
// An empty file list returns immediately without connecting. Per-file
// read errors and asynchronous delivery failures are logged and counted
// but do not stop the loop. Connection failures, a lost connection,
// any error returned by Publish, cancellation of ctx and panics inside
// the loop end the run; Terminate and Disconnect still run, in that
// order, before Run returns.
//
// Returns:
//   - Result: Counts for the files processed so far
//   - error: nil, or wraps ErrConnectionFailed, ErrPublisherStartFailed,
//     ErrInterrupted or ErrPublishLoop
func (s *Session) Run(ctx context.Context, files []image.File) (result Result, err error) {
	if len(files) == 0 {
		return Result{}, nil
	}

	events := s.events
	if events == nil {
		events = NewLogListener(s.logger)
	}

	s.setState(StateConnecting)
	if connErr := s.transport.Connect(ctx, events); connErr != nil {
		s.setState(StateTerminating)
		s.disconnect(ctx)
		s.setState(StateClosed)

		if ctx.Err() != nil {
			return result, fmt.Errorf("%w: %w", ErrInterrupted, connErr)
		}
		return result, fmt.Errorf("%w: %w", ErrConnectionFailed, connErr)
	}
	s.setState(StateConnected)
	s.logger.Info("messaging service connected")

	defer func() {
		s.shutdown(ctx)
		result.Failed = int(s.failedCount.Load())
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("error during publishing", "panic", r)
			err = fmt.Errorf("%w: %v", ErrPublishLoop, r)
		}
	}()

	s.setState(StatePublisherStarting)
	if startErr := s.transport.StartPublisher(ctx, failureRelay{s: s}); startErr != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("%w: %w", ErrInterrupted, startErr)
		}
		return result, fmt.Errorf("%w: %w", ErrPublisherStartFailed, startErr)
	}
	s.ready.Store(true)
	s.setState(StateReady)
	s.logger.Info("direct publisher ready")

	for i, f := range files {
		if ctx.Err() != nil {
			s.logger.Info("publishing interrupted", "remaining", len(files)-i)
			return result, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}

		switch oc, pubErr := s.publishFile(ctx, f); oc {
		case outcomeSkipped:
			result.Skipped++
			continue
		case outcomePublished:
			result.Published++
		case outcomeFailed:
			if ctx.Err() != nil {
				s.logger.Info("publishing interrupted", "remaining", len(files)-i-1)
				return result, fmt.Errorf("%w: %w", ErrInterrupted, pubErr)
			}
			s.logger.Error("error during publishing", "file", f.Name, "remaining", len(files)-i-1, "error", pubErr)
			if errors.Is(pubErr, ErrConnectionLost) {
				return result, fmt.Errorf("%w: %w", ErrConnectionFailed, pubErr)
			}
			return result, fmt.Errorf("%w: %w", ErrPublishLoop, pubErr)
		}

		if sleepErr := s.sleep(ctx, s.cfg.Delay); sleepErr != nil {
			s.logger.Info("publishing interrupted", "remaining", len(files)-i-1)
			return result, fmt.Errorf("%w: %w", ErrInterrupted, sleepErr)
		}
	}

	s.logger.Info("all images published",
		"published", result.Published,
		"skipped", result.Skipped,
		"failed", s.failedCount.Load(),
	)
	return result, nil
}

// outcome is what happened to one file.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeSkipped
	outcomeFailed
)

// publishFile runs Encoder → Assemble → Publish for one file. The error
// is set only for outcomeFailed.
func (s *Session) publishFile(ctx context.Context, f image.File) (outcome, error) {
	payload, err := s.encoder.Encode(f)
	if err != nil {
		s.logger.Error("error reading image, skipping", "path", f.Path, "error", err)
		for _, r := range s.recorders {
			r.RecordSkipped(f, err)
		}
		return outcomeSkipped, nil
	}

	if s.cfg.Debug {
		d := image.Diagnose(payload)
		s.logger.Debug("base64 data sample",
			"path", f.Path,
			"head", d.Head,
			"tail", d.Tail,
			"marker", d.Marker,
			"detected_mime", d.DetectedMIME,
		)
		if d.Marker == image.MarkerNone {
			s.logger.Debug("no standard image format marker in the first 100 chars", "path", f.Path)
		}
	}

	msg := image.Assemble(s.cfg.TopicPrefix, f.Name, payload.Text)

	s.setState(StatePublishing)
	err = s.publish(ctx, msg)
	s.setState(StateReady)

	if err != nil {
		failureRelay{s: s}.OnFailedPublish(FailureEvent{
			Topic:     msg.Topic,
			MessageID: msg.ID,
			Cause:     err,
			Message:   fmt.Sprintf("publishing %s: %v", f.Name, err),
			Time:      time.Now(),
		})
		return outcomeFailed, err
	}

	s.logger.Info("published image", "file", f.Name, "topic", msg.Topic, "size_chars", payload.Size())
	for _, r := range s.recorders {
		r.RecordPublished(msg)
	}
	return outcomePublished, nil
}

// publish hands msg to the transport once the publisher is ready.
func (s *Session) publish(ctx context.Context, msg *image.Message) error {
	if !s.ready.Load() {
		return ErrNotReady
	}
	if err := s.transport.Publish(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// shutdown terminates the publisher, then disconnects. Both steps are
// best-effort and run on a context detached from ctx so an interrupt
// cannot skip them.
func (s *Session) shutdown(ctx context.Context) {
	s.setState(StateTerminating)
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("terminating publisher")
	if err := s.transport.Terminate(shutdownCtx); err != nil {
		s.logger.Warn("error terminating publisher", "error", err)
	}

	s.disconnectWith(shutdownCtx)
	s.setState(StateClosed)
}

// disconnect releases the connection after a failed Connect.
func (s *Session) disconnect(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.disconnectWith(shutdownCtx)
}

func (s *Session) disconnectWith(ctx context.Context) {
	s.logger.Info("disconnecting messaging service")
	if err := s.transport.Disconnect(ctx); err != nil {
		s.logger.Warn("error disconnecting messaging service", "error", err)
	}
}

// failureRelay counts and records every failure before handing it to the
// configured (or default logging) failure listener.
type failureRelay struct {
	s *Session
}

func (r failureRelay) OnFailedPublish(ev FailureEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.s.failedCount.Add(1)

	for _, rec := range r.s.recorders {
		rec.RecordFailed(ev)
	}

	l := r.s.failures
	if l == nil {
		l = NewLogListener(r.s.logger)
	}
	l.OnFailedPublish(ev)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsInterrupted reports whether err ended a run because of cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
