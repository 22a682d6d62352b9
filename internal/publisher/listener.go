package publisher

import (
	"time"

	"github.com/nerrad567/imagepub/internal/image"
)

// EventKind names a connection lifecycle notification.
type EventKind string

const (
	EventReconnected        EventKind = "reconnected"
	EventReconnecting       EventKind = "reconnecting"
	EventServiceInterrupted EventKind = "service_interrupted"
)

// ServiceEvent is a connection lifecycle notification from a transport.
type ServiceEvent struct {
	Kind    EventKind
	Cause   error
	Message string
	Time    time.Time
}

// FailureEvent reports one message the broker client could not publish.
type FailureEvent struct {
	Topic     string
	MessageID string
	Cause     error
	Message   string
	Time      time.Time
}

// ServiceEventListener observes the connection. Implementations must not
// block; they are called from broker client goroutines.
type ServiceEventListener interface {
	OnReconnected(ev ServiceEvent)
	OnReconnecting(ev ServiceEvent)
	OnServiceInterrupted(ev ServiceEvent)
}

// PublishFailureListener observes failed publishes. It may be called from
// broker client goroutines.
type PublishFailureListener interface {
	OnFailedPublish(ev FailureEvent)
}

// Dispatch routes ev to the listener method matching its kind.
// Transports use it so they only need to build the event.
func Dispatch(l ServiceEventListener, ev ServiceEvent) {
	if l == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	switch ev.Kind {
	case EventReconnected:
		l.OnReconnected(ev)
	case EventReconnecting:
		l.OnReconnecting(ev)
	case EventServiceInterrupted:
		l.OnServiceInterrupted(ev)
	}
}

// LogListener implements both listener interfaces by logging the cause
// and message of each event. It never influences control flow.
type LogListener struct {
	logger Logger
}

// NewLogListener returns a LogListener writing to logger.
func NewLogListener(logger Logger) *LogListener {
	return &LogListener{logger: logger}
}

func (l *LogListener) OnReconnected(ev ServiceEvent) {
	l.logger.Info("broker reconnected", "cause", ev.Cause, "message", ev.Message)
}

func (l *LogListener) OnReconnecting(ev ServiceEvent) {
	l.logger.Warn("broker reconnecting", "cause", ev.Cause, "message", ev.Message)
}

func (l *LogListener) OnServiceInterrupted(ev ServiceEvent) {
	l.logger.Error("broker service interrupted", "cause", ev.Cause, "message", ev.Message)
}

func (l *LogListener) OnFailedPublish(ev FailureEvent) {
	l.logger.Error("publish failed",
		"topic", ev.Topic,
		"message_id", ev.MessageID,
		"cause", ev.Cause,
		"message", ev.Message,
	)
}

// Recorder observes the outcome of every file for telemetry.
// Implementations must be safe for concurrent use; RecordFailed may be
// called from broker client goroutines.
type Recorder interface {
	RecordPublished(msg *image.Message)
	RecordSkipped(file image.File, err error)
	RecordFailed(ev FailureEvent)
}
