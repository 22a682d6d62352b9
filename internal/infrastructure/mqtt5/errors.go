package mqtt5

import "errors"

// Domain-specific errors for MQTT v5 operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing before Connect succeeded
	// or after Disconnect.
	ErrNotConnected = errors.New("mqtt5: client not connected")

	// ErrConnectionLost is returned when publishing after the reconnect
	// budget was spent. The connection will not come back.
	ErrConnectionLost = errors.New("mqtt5: connection lost")

	// ErrConnectionFailed is returned when the connection attempt budget
	// is spent.
	ErrConnectionFailed = errors.New("mqtt5: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt5: publish failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt5: topic cannot be empty")

	// ErrInvalidQoS is returned for QoS levels outside 0-2.
	ErrInvalidQoS = errors.New("mqtt5: invalid QoS level (must be 0, 1, or 2)")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt5: operation timed out")
)
