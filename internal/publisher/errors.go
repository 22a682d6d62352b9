package publisher

import "errors"

// Domain-specific errors for publish sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the transport could not connect
	// within its retry budget. The run is aborted.
	ErrConnectionFailed = errors.New("publisher: connection failed")

	// ErrConnectionLost is wrapped by Transport.Publish when the broker
	// connection is gone for good, for example after the reconnect budget
	// ran out. The run ends with ErrConnectionFailed.
	ErrConnectionLost = errors.New("publisher: connection lost")

	// ErrPublisherStartFailed is returned when the publisher handle could
	// not be made ready after connecting.
	ErrPublisherStartFailed = errors.New("publisher: publisher start failed")

	// ErrNotReady is returned when a publish is attempted before the
	// publisher is ready or after it was terminated.
	ErrNotReady = errors.New("publisher: publisher not ready")

	// ErrPublishFailed marks a single failed publish. It is reported to the
	// failure listener. Asynchronous failures never end the run; an error
	// returned by Transport.Publish does.
	ErrPublishFailed = errors.New("publisher: publish failed")

	// ErrInterrupted is returned when the run context was cancelled.
	// Cleanup has completed by the time it is returned.
	ErrInterrupted = errors.New("publisher: interrupted")

	// ErrPublishLoop wraps a synchronous publish error or an unexpected
	// panic inside the publish loop.
	ErrPublishLoop = errors.New("publisher: publish loop aborted")
)
