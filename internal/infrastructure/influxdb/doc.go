// Package influxdb provides optional InfluxDB telemetry for imagepub.
//
// It wraps the official influxdb-client-go v2 library with a batched,
// non-blocking write API.
//
// # Measurements
//
//   - image_publish: one point per file, tagged by outcome, filename and
//     content_type, with count and size_chars fields
//   - image_run: one point per run with published, skipped, failed and
//     duration_seconds fields
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePublishEvent(influxdb.OutcomePublished, "cat.png", "image/png", 14532)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking. Batch errors reach the SetOnError
// callback wrapped in ErrWriteFailed. Connect returns ErrDisabled or
// ErrConnectionFailed directly.
package influxdb
