package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPublish = "image_publish"
	MeasurementRun     = "image_run"
)

// Outcome tag values for MeasurementPublish.
const (
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// WritePublishEvent records what happened to one image file.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - outcome: OutcomePublished, OutcomeSkipped or OutcomeFailed
//   - filename: Image file name (tag)
//   - contentType: image/<ext>, empty when unknown (tag)
//   - sizeChars: Base64 payload length, 0 when not encoded
//
// Example:
//
//	client.WritePublishEvent(influxdb.OutcomePublished, "cat.png", "image/png", 14532)
func (c *Client) WritePublishEvent(outcome, filename, contentType string, sizeChars int) {
	tags := map[string]string{
		"outcome":  outcome,
		"filename": filename,
	}
	if contentType != "" {
		tags["content_type"] = contentType
	}

	c.WritePoint(MeasurementPublish, tags, map[string]interface{}{
		"count":      1,
		"size_chars": sizeChars,
	})
}

// WriteRunSummary records the totals of one publish run and flushes, so
// the summary and every queued publish event have been sent on return.
func (c *Client) WriteRunSummary(published, skipped, failed int, duration time.Duration) {
	c.WritePoint(MeasurementRun, nil, map[string]interface{}{
		"published":        published,
		"skipped":          skipped,
		"failed":           failed,
		"duration_seconds": duration.Seconds(),
	})
	c.Flush()
}

// WritePoint writes a custom point with full control over tags and fields.
// Client tags set with SetTags are merged in; explicit tags win.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.mu.RLock()
	merged := make(map[string]string, len(c.tags)+len(tags))
	for k, v := range c.tags {
		merged[k] = v
	}
	c.mu.RUnlock()
	for k, v := range tags {
		merged[k] = v
	}

	point := write.NewPoint(measurement, merged, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
