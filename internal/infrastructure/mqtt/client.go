package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/imagepub/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for MQTT 3.1.1 brokers.
//
// It provides a bounded initial connection, fire-and-forget publishing
// with asynchronous failure reporting, and automatic reconnection with a
// bounded attempt budget.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Callbacks run on paho goroutines and must not block.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     *config.Config

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// everConnected distinguishes the first OnConnect from reconnects.
	everConnected atomic.Bool

	// reconnectAttempts counts attempts since the connection was lost.
	reconnectAttempts atomic.Int64

	// closed is set by Close; a closed client never reconnects.
	closed atomic.Bool

	// lost is closed once the reconnect budget is spent.
	lost     chan struct{}
	lostOnce sync.Once

	// inflight tracks publishes whose tokens have not completed.
	inflight sync.WaitGroup

	// Callbacks for connection events (optional, set via the Set* methods).
	onReconnected   func()
	onReconnecting  func(attempt int, cause error)
	onInterrupted   func(err error)
	onPublishFailed func(topic, messageID string, err error)
	lastLostErr     error
	callbackMu      sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewClient builds a client from configuration without connecting.
// Set callbacks before calling Connect so no event is missed.
func NewClient(cfg *config.Config) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		options: opts,
		lost:    make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// Connect establishes the connection, retrying up to retry.max_retries
// times with retry.interval between attempts.
//
// Parameters:
//   - ctx: Cancels the remaining attempts
//
// Returns:
//   - error: Wraps ErrConnectionFailed once every attempt failed, or the
//     context error when ctx ends first
func (c *Client) Connect(ctx context.Context) error {
	attempts := c.cfg.Retry.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, c.cfg.Retry.Interval); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
			}
		}

		lastErr = c.connectOnce(ctx)
		if lastErr == nil {
			// The OnConnectHandler runs asynchronously and may not have
			// executed yet.
			c.setConnected(true)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		}

		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT connection attempt failed",
				"attempt", attempt,
				"max_attempts", attempts,
				"error", lastErr,
			)
		}
	}

	return fmt.Errorf("%w: %d attempts: %w", ErrConnectionFailed, attempts, lastErr)
}

// connectOnce performs a single connection attempt bounded by ctx and the
// per-attempt timeout.
func (c *Client) connectOnce(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultConnectTimeout):
		return fmt.Errorf("%w after %v", ErrTimeout, defaultConnectTimeout)
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)
	c.reconnectAttempts.Store(0)

	if !c.everConnected.Swap(true) {
		return
	}

	c.callbackMu.RLock()
	callback := c.onReconnected
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called when an established connection drops.
// paho starts reconnecting straight after.
func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)

	c.callbackMu.Lock()
	c.lastLostErr = err
	c.callbackMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

// handleReconnecting is called before every reconnect attempt. Once the
// retry budget is spent the client gives up and reports an interruption.
func (c *Client) handleReconnecting() {
	attempt := int(c.reconnectAttempts.Add(1))

	c.callbackMu.RLock()
	cause := c.lastLostErr
	reconnecting := c.onReconnecting
	interrupted := c.onInterrupted
	c.callbackMu.RUnlock()

	if attempt > c.cfg.Retry.MaxRetries+1 {
		return
	}
	if attempt == c.cfg.Retry.MaxRetries+1 {
		err := fmt.Errorf("%w: gave up after %d reconnect attempts", ErrConnectionFailed, attempt-1)
		if cause != nil {
			err = fmt.Errorf("%w: %w", err, cause)
		}
		c.lostOnce.Do(func() { close(c.lost) })
		// Disconnect blocks on the reconnect goroutine we are running on.
		go c.client.Disconnect(0)
		if interrupted != nil {
			interrupted(err)
		}
		return
	}

	if reconnecting != nil {
		reconnecting(attempt, cause)
	}
}

// Close disconnects from the broker after waiting briefly for pending
// operations.
//
// Returns:
//   - error: Always nil; an already closed connection is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.closed.Store(true)
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetOnReconnected sets a callback invoked when a dropped connection is
// restored. It is not invoked for the initial connection.
func (c *Client) SetOnReconnected(callback func()) {
	c.callbackMu.Lock()
	c.onReconnected = callback
	c.callbackMu.Unlock()
}

// SetOnReconnecting sets a callback invoked before each reconnect attempt.
// cause is the error that dropped the connection.
func (c *Client) SetOnReconnecting(callback func(attempt int, cause error)) {
	c.callbackMu.Lock()
	c.onReconnecting = callback
	c.callbackMu.Unlock()
}

// SetOnInterrupted sets a callback invoked when reconnection is abandoned.
func (c *Client) SetOnInterrupted(callback func(err error)) {
	c.callbackMu.Lock()
	c.onInterrupted = callback
	c.callbackMu.Unlock()
}

// SetOnPublishFailed sets a callback invoked when an asynchronous publish
// completes with an error.
func (c *Client) SetOnPublishFailed(callback func(topic, messageID string, err error)) {
	c.callbackMu.Lock()
	c.onPublishFailed = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and publish errors.
// If not set, they are only reported through callbacks.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
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
