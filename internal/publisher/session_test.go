package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/imagepub/internal/image"
)

// fakeTransport records every call in order and can be told to fail.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string
	sent  []*image.Message

	connectErr error
	startErr   error
	publishErr map[string]error // by message ID

	// onPublish runs inside Publish, after the message is recorded.
	onPublish func(msg *image.Message)

	events   ServiceEventListener
	failures PublishFailureListener
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Connect(_ context.Context, events ServiceEventListener) error {
	f.record("connect")
	f.events = events
	return f.connectErr
}

func (f *fakeTransport) StartPublisher(_ context.Context, failures PublishFailureListener) error {
	f.record("start")
	f.failures = failures
	return f.startErr
}

func (f *fakeTransport) Publish(_ context.Context, msg *image.Message) error {
	f.record("publish")
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.onPublish != nil {
		f.onPublish(msg)
	}
	return f.publishErr[msg.ID]
}

func (f *fakeTransport) Terminate(_ context.Context) error {
	f.record("terminate")
	return nil
}

func (f *fakeTransport) Disconnect(_ context.Context) error {
	f.record("disconnect")
	return nil
}

func (f *fakeTransport) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// cleanupCalls returns the terminate/disconnect calls in order.
func (f *fakeTransport) cleanupCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c == "terminate" || c == "disconnect" {
			out = append(out, c)
		}
	}
	return out
}

// countingFailures counts failure events.
type countingFailures struct {
	mu     sync.Mutex
	events []FailureEvent
}

func (c *countingFailures) OnFailedPublish(ev FailureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// countingRecorder counts recorder callbacks.
type countingRecorder struct {
	mu                        sync.Mutex
	published, skipped, fails int
}

func (r *countingRecorder) RecordPublished(_ *image.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published++
}

func (r *countingRecorder) RecordSkipped(_ image.File, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *countingRecorder) RecordFailed(_ FailureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails++
}

// recordingLogger keeps every log entry as "LEVEL msg".
type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("ERROR", msg) }

// count returns the entries at level whose message starts with prefix.
func (l *recordingLogger) count(level, prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if strings.HasPrefix(e, level+" "+prefix) {
			n++
		}
	}
	return n
}

// writeImages creates image files and returns them in order.
func writeImages(t *testing.T, names ...string) []image.File {
	t.Helper()
	dir := t.TempDir()
	files := make([]image.File, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("data-"+name), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
		files = append(files, image.NewFile(path))
	}
	return files
}

// newTestSession returns a session with no publish delay.
func newTestSession(tr Transport) *Session {
	cfg := DefaultConfig()
	cfg.Delay = 0
	return NewSession(tr, cfg)
}

func assertCleanupOnce(t *testing.T, tr *fakeTransport) {
	t.Helper()
	got := tr.cleanupCalls()
	want := []string{"terminate", "disconnect"}
	if !slices.Equal(got, want) {
		t.Errorf("cleanup calls = %v, want %v", got, want)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_PublishesEveryFile(t *testing.T) {
	tr := &fakeTransport{}
	files := writeImages(t, "a.png", "b.jpg", "cat.PNG")

	s := newTestSession(tr)
	result, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Published != 3 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("Run() result = %+v, want 3 published", result)
	}

	wantCalls := []string{"connect", "start", "publish", "publish", "publish", "terminate", "disconnect"}
	if !slices.Equal(tr.calls, wantCalls) {
		t.Errorf("calls = %v, want %v", tr.calls, wantCalls)
	}

	last := tr.sent[2]
	if last.Topic != "solace/images/cat.PNG" {
		t.Errorf("Topic = %q, want solace/images/cat.PNG", last.Topic)
	}
	if last.ContentType() != "image/png" {
		t.Errorf("ContentType() = %q, want image/png", last.ContentType())
	}
	if last.ID != "image-cat.PNG" {
		t.Errorf("ID = %q, want image-cat.PNG", last.ID)
	}

	if s.State() != StateClosed {
		t.Errorf("State() = %q, want %q", s.State(), StateClosed)
	}
}

func TestRun_EmptyListDoesNotConnect(t *testing.T) {
	tr := &fakeTransport{}

	result, err := newTestSession(tr).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != (Result{}) {
		t.Errorf("Run() result = %+v, want zero", result)
	}
	if len(tr.calls) != 0 {
		t.Errorf("calls = %v, want none", tr.calls)
	}
}

func TestRun_UnreadableFileIsSkipped(t *testing.T) {
	tests := []struct {
		name       string
		unreadable func(t *testing.T) image.File
	}{
		{
			name: "missing",
			unreadable: func(t *testing.T) image.File {
				return image.NewFile(filepath.Join(t.TempDir(), "unreadable.png"))
			},
		},
		{
			name: "permission denied",
			unreadable: func(t *testing.T) image.File {
				if os.Geteuid() == 0 {
					t.Skip("root can read files with mode 000")
				}
				path := filepath.Join(t.TempDir(), "unreadable.png")
				if err := os.WriteFile(path, []byte("secret"), 0o000); err != nil {
					t.Fatalf("failed to write %s: %v", path, err)
				}
				return image.NewFile(path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			files := writeImages(t, "one.png", "two.gif", "three.jpg")
			bad := tt.unreadable(t)
			files = append(files[:1], append([]image.File{bad}, files[1:]...)...)

			rec := &countingRecorder{}
			log := &recordingLogger{}
			s := newTestSession(tr)
			s.SetLogger(log)
			s.AddRecorder(rec)

			result, err := s.Run(context.Background(), files)
			if err != nil {
				t.Fatalf("Run() error = %v, want the run to continue", err)
			}

			if result.Published != 3 {
				t.Errorf("Published = %d, want 3", result.Published)
			}
			if result.Skipped != 1 {
				t.Errorf("Skipped = %d, want 1", result.Skipped)
			}
			if tr.count("publish") != 3 {
				t.Errorf("publish calls = %d, want 3", tr.count("publish"))
			}
			if rec.skipped != 1 || rec.published != 3 {
				t.Errorf("recorder = %+v, want 3 published 1 skipped", rec)
			}
			if n := log.count("ERROR", "error reading image, skipping"); n != 1 {
				t.Errorf("encode errors logged = %d, want 1", n)
			}
			if n := log.count("ERROR", ""); n != 1 {
				t.Errorf("error log entries = %d, want 1", n)
			}
			assertCleanupOnce(t, tr)
		})
	}
}

func TestRun_PublishErrorEndsRun(t *testing.T) {
	files := writeImages(t, "ok.png", "bad.png", "also-ok.png")
	tr := &fakeTransport{
		publishErr: map[string]error{"image-bad.png": errors.New("broker rejected")},
	}
	failures := &countingFailures{}
	rec := &countingRecorder{}

	s := newTestSession(tr)
	s.SetPublishFailureListener(failures)
	s.AddRecorder(rec)

	result, err := s.Run(context.Background(), files)
	if !errors.Is(err, ErrPublishLoop) {
		t.Fatalf("Run() error = %v, want ErrPublishLoop", err)
	}
	if errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Run() error = %v, must not be a connection failure", err)
	}

	if result.Published != 1 || result.Failed != 1 {
		t.Errorf("Run() result = %+v, want 1 published 1 failed", result)
	}
	if tr.count("publish") != 2 {
		t.Errorf("publish calls = %d, want 2", tr.count("publish"))
	}
	if len(failures.events) != 1 {
		t.Fatalf("failure events = %d, want 1", len(failures.events))
	}

	ev := failures.events[0]
	if ev.Topic != "solace/images/bad.png" || ev.MessageID != "image-bad.png" {
		t.Errorf("failure event = %+v", ev)
	}
	if !errors.Is(ev.Cause, ErrPublishFailed) {
		t.Errorf("failure cause = %v, want ErrPublishFailed", ev.Cause)
	}
	if rec.fails != 1 {
		t.Errorf("recorder fails = %d, want 1", rec.fails)
	}
	assertCleanupOnce(t, tr)
}

func TestRun_ConnectionLostEndsRun(t *testing.T) {
	files := writeImages(t, "a.png", "b.png", "c.png", "d.png")
	tr := &fakeTransport{
		publishErr: map[string]error{
			"image-b.png": fmt.Errorf("%w: reconnect budget spent", ErrConnectionLost),
		},
	}

	var sleeps int
	s := newTestSession(tr)
	s.sleep = func(_ context.Context, _ time.Duration) error {
		sleeps++
		return nil
	}

	result, err := s.Run(context.Background(), files)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Run() error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Run() error = %v, want it to wrap ErrConnectionLost", err)
	}

	if result.Published != 1 || result.Failed != 1 {
		t.Errorf("Run() result = %+v, want 1 published 1 failed", result)
	}
	if tr.count("publish") != 2 {
		t.Errorf("publish calls = %d, want 2 (no publish after the connection was lost)", tr.count("publish"))
	}
	if sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", sleeps)
	}
	assertCleanupOnce(t, tr)
	if s.State() != StateClosed {
		t.Errorf("State() = %q, want %q", s.State(), StateClosed)
	}
}

func TestRun_PublishCancelledWhileWaiting(t *testing.T) {
	files := writeImages(t, "a.png", "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{
		publishErr: map[string]error{"image-a.png": context.Canceled},
	}
	tr.onPublish = func(_ *image.Message) { cancel() }

	_, err := newTestSession(tr).Run(ctx, files)
	if !IsInterrupted(err) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	assertCleanupOnce(t, tr)
}

func TestRun_AsyncFailuresAreCounted(t *testing.T) {
	files := writeImages(t, "a.png", "b.png")
	tr := &fakeTransport{}
	tr.onPublish = func(msg *image.Message) {
		tr.failures.OnFailedPublish(FailureEvent{Topic: msg.Topic, Cause: errors.New("nack")})
	}
	failures := &countingFailures{}

	s := newTestSession(tr)
	s.SetPublishFailureListener(failures)

	result, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2", result.Failed)
	}
	if len(failures.events) != 2 {
		t.Errorf("failure events = %d, want 2", len(failures.events))
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	tr := &fakeTransport{connectErr: errors.New("retry budget exhausted")}
	files := writeImages(t, "a.png")

	s := newTestSession(tr)
	_, err := s.Run(context.Background(), files)

	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Run() error = %v, want ErrConnectionFailed", err)
	}
	if tr.count("terminate") != 0 {
		t.Error("Terminate called although no publisher was started")
	}
	if tr.count("disconnect") != 1 {
		t.Errorf("disconnect calls = %d, want 1", tr.count("disconnect"))
	}
	if tr.count("publish") != 0 {
		t.Error("Publish called after failed connect")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %q, want %q", s.State(), StateClosed)
	}
}

func TestRun_StartFailureStillCleansUp(t *testing.T) {
	tr := &fakeTransport{startErr: errors.New("publisher refused")}
	files := writeImages(t, "a.png")

	_, err := newTestSession(tr).Run(context.Background(), files)

	if !errors.Is(err, ErrPublisherStartFailed) {
		t.Fatalf("Run() error = %v, want ErrPublisherStartFailed", err)
	}
	if tr.count("publish") != 0 {
		t.Error("Publish called before the publisher was ready")
	}
	assertCleanupOnce(t, tr)
}

func TestRun_InterruptDuringLoop(t *testing.T) {
	files := writeImages(t, "a.png", "b.png", "c.png", "d.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{}
	tr.onPublish = func(msg *image.Message) {
		if msg.ID == "image-b.png" {
			cancel()
		}
	}

	s := newTestSession(tr)
	result, err := s.Run(ctx, files)

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	if !IsInterrupted(err) {
		t.Error("IsInterrupted() = false")
	}
	if result.Published != 2 {
		t.Errorf("Published = %d, want 2", result.Published)
	}
	if tr.count("publish") != 2 {
		t.Errorf("publish calls = %d, want 2", tr.count("publish"))
	}
	assertCleanupOnce(t, tr)
}

func TestRun_InterruptDuringDelay(t *testing.T) {
	files := writeImages(t, "a.png", "b.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.Delay = time.Hour
	s := NewSession(tr, cfg)
	tr.onPublish = func(_ *image.Message) { cancel() }

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, files)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("Run() error = %v, want ErrInterrupted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
	assertCleanupOnce(t, tr)
}

func TestRun_PanicInLoopStillCleansUp(t *testing.T) {
	files := writeImages(t, "a.png", "b.png")
	tr := &fakeTransport{}
	tr.onPublish = func(_ *image.Message) { panic("client exploded") }

	_, err := newTestSession(tr).Run(context.Background(), files)

	if !errors.Is(err, ErrPublishLoop) {
		t.Fatalf("Run() error = %v, want ErrPublishLoop", err)
	}
	assertCleanupOnce(t, tr)
}

func TestRun_CleanupAfterFailureAtEveryPoint(t *testing.T) {
	// A failure injected at the n-th publish must still end with exactly one
	// terminate followed by one disconnect.
	for failAt := 1; failAt <= 3; failAt++ {
		files := writeImages(t, "a.png", "b.png", "c.png")
		tr := &fakeTransport{}
		n := 0
		tr.onPublish = func(_ *image.Message) {
			n++
			if n == failAt {
				panic("injected")
			}
		}

		if _, err := newTestSession(tr).Run(context.Background(), files); err == nil {
			t.Errorf("failAt=%d: Run() error = nil, want failure", failAt)
		}
		assertCleanupOnce(t, tr)
	}
}

func TestRun_DelayBetweenPublishes(t *testing.T) {
	files := writeImages(t, "a.png", "b.png", "c.png")
	tr := &fakeTransport{}

	cfg := DefaultConfig()
	s := NewSession(tr, cfg)

	var delays []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := s.Run(context.Background(), files); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(delays) != 3 {
		t.Fatalf("sleep called %d times, want 3", len(delays))
	}
	for _, d := range delays {
		if d != 100*time.Millisecond {
			t.Errorf("delay = %v, want 100ms", d)
		}
	}
}

func TestRun_ListenersAreHandedToTransport(t *testing.T) {
	files := writeImages(t, "a.png")
	tr := &fakeTransport{}
	events := MultiListener{}

	s := newTestSession(tr)
	s.SetServiceEventListener(events)

	if _, err := s.Run(context.Background(), files); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.events == nil {
		t.Error("Connect did not receive a service event listener")
	}
	if tr.failures == nil {
		t.Error("StartPublisher did not receive a failure listener")
	}
}

func TestRun_DefaultListenersWhenUnset(t *testing.T) {
	files := writeImages(t, "a.png")
	tr := &fakeTransport{}

	if _, err := newTestSession(tr).Run(context.Background(), files); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := tr.events.(*LogListener); !ok {
		t.Errorf("default service listener = %T, want *LogListener", tr.events)
	}
}

func TestRun_CustomTopicPrefix(t *testing.T) {
	files := writeImages(t, "dog.jpeg")
	tr := &fakeTransport{}

	cfg := DefaultConfig()
	cfg.Delay = 0
	cfg.TopicPrefix = "acme/pictures"

	if _, err := NewSession(tr, cfg).Run(context.Background(), files); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := tr.sent[0].Topic; got != "acme/pictures/dog.jpeg" {
		t.Errorf("Topic = %q, want acme/pictures/dog.jpeg", got)
	}
}

func TestPublish_NotReady(t *testing.T) {
	s := newTestSession(&fakeTransport{})

	err := s.publish(context.Background(), image.Assemble("", "a.png", ""))
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("publish() error = %v, want ErrNotReady", err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if err := sleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext(0) error = %v, want context.Canceled", err)
	}
}
