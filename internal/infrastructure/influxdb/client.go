package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/imagepub/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Used when the configured batch settings are not positive.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client records publish telemetry in an InfluxDB v2 bucket.
//
// Points are queued on a non-blocking write API and sent in batches, so
// a slow or failing InfluxDB never holds up publishing. Write failures
// arrive on the SetOnError callback wrapped in ErrWriteFailed.
//
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	open    bool
	tags    map[string]string
	onError func(err error)
}

// Connect pings the server and opens a batched write API on cfg.Bucket.
//
// Returns:
//   - error: ErrDisabled when cfg.Enabled is false, or wraps
//     ErrConnectionFailed when the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("%w: %s did not answer ping", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		open:     true,
		tags:     map[string]string{},
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions maps the batch settings onto client options.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close sends queued points and releases the client. Later writes are
// dropped. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if !wasOpen || c.client == nil {
		return nil
	}

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// SetTags sets tags added to every point, such as the broker VPN and
// client ID.
func (c *Client) SetTags(tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = make(map[string]string, len(tags))
	for k, v := range tags {
		c.tags[k] = v
	}
}

// Flush blocks until every queued point has been sent. No-op once
// closed.
func (c *Client) Flush() {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.Flush()
}
