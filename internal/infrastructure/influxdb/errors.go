package influxdb

import "errors"

// Telemetry errors. None of them should fail a publish run; callers log
// and carry on.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed is returned by Connect when the server does not
	// answer a ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps batch write errors passed to the SetOnError
	// callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
