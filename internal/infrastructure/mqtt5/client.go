package mqtt5

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/imagepub/internal/infrastructure/config"
)

// Connection constants.
const (
	keepAlive      = 30 // seconds
	connectTimeout = 10 * time.Second
)

// Logger is the logging surface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client publishes to an MQTT v5 broker through an autopaho connection
// manager.
//
// The manager reconnects on its own after a drop. Client bounds both the
// initial connection and every reconnect cycle to retry.max_retries
// failed attempts and then stops the manager.
type Client struct {
	cfg       *config.Config
	brokerURL *url.URL

	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc

	// everConnected distinguishes the first connection from reconnects.
	everConnected atomic.Bool

	// down is set between a drop and the next successful connection.
	down atomic.Bool

	// closing suppresses connection events during Disconnect.
	closing atomic.Bool

	// connectErrors counts failed attempts since the last success.
	connectErrors atomic.Int64

	// exhausted receives the final error when the initial budget is spent.
	exhausted chan error

	// stopped is closed once the connection manager has been stopped.
	stopped  chan struct{}
	stopOnce sync.Once

	inflight sync.WaitGroup

	onReconnected   func()
	onReconnecting  func(attempt int, cause error)
	onInterrupted   func(err error)
	onPublishFailed func(topic, messageID string, err error)
	callbackMu      sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient validates the broker settings without connecting.
func NewClient(cfg *config.Config) (*Client, error) {
	brokerURL, err := cfg.BrokerURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{
		cfg:       cfg,
		brokerURL: brokerURL,
		exhausted: make(chan error, 1),
		stopped:   make(chan struct{}),
	}, nil
}

// Connect starts the connection manager and waits for the first
// connection.
//
// The manager runs on its own context so cancelling ctx only abandons
// the wait; Disconnect always stops the manager.
//
// Returns:
//   - error: Wraps ErrConnectionFailed when the attempt budget is spent
//     or ctx ends first
func (c *Client) Connect(ctx context.Context) error {
	managerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	cm, err := autopaho.NewConnection(managerCtx, c.clientConfig())
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.cm = cm

	awaitCtx, cancelAwait := context.WithCancel(ctx)
	defer cancelAwait()

	awaited := make(chan error, 1)
	go func() {
		awaited <- cm.AwaitConnection(awaitCtx)
	}()

	select {
	case err := <-awaited:
		if err != nil {
			c.stop()
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	case err := <-c.exhausted:
		return err
	}
}

// clientConfig builds the autopaho configuration.
func (c *Client) clientConfig() autopaho.ClientConfig {
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{c.brokerURL},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: true,
		ConnectRetryDelay:             c.cfg.Retry.Interval,
		ConnectTimeout:                connectTimeout,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			c.handleConnectionUp()
		},
		OnConnectError: func(err error) {
			c.handleConnectError(err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID(),
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.handleConnectionDown(fmt.Errorf("server disconnect: reason code %d", d.ReasonCode))
			},
			OnClientError: func(err error) {
				c.handleConnectionDown(err)
			},
		},
	}

	if c.cfg.Auth.Username != "" {
		cfg.ConnectUsername = c.cfg.Auth.Username
		cfg.ConnectPassword = []byte(c.cfg.Auth.Password)
	}

	if c.cfg.UseTLS() {
		cfg.TlsCfg = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.cfg.Broker.TLS.SkipVerify, //nolint:gosec // opt-in via broker.tls.skip_verify
		}
	}

	return cfg
}

func (c *Client) handleConnectionUp() {
	c.connectErrors.Store(0)
	c.down.Store(false)

	if logger := c.getLogger(); logger != nil {
		logger.Info("mqtt5 connected to broker", "broker", c.brokerURL.Redacted())
	}

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

// handleConnectionDown runs when an established connection drops.
// Both disconnect callbacks may fire for one drop.
func (c *Client) handleConnectionDown(cause error) {
	if c.closing.Load() || !c.everConnected.Load() || c.down.Swap(true) {
		return
	}

	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt5 connection lost", "error", cause)
	}

	if c.cfg.Retry.MaxRetries == 0 {
		c.giveUp(fmt.Errorf("%w: reconnect disabled: %w", ErrConnectionFailed, cause))
		return
	}

	c.callbackMu.RLock()
	callback := c.onReconnecting
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(1, cause)
	}
}

// handleConnectError runs after every failed connection attempt.
func (c *Client) handleConnectError(err error) {
	failures := int(c.connectErrors.Add(1))

	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt5 connection error", "attempt", failures, "error", err)
	}

	if !c.everConnected.Load() {
		// The initial budget is one attempt plus MaxRetries retries.
		if failures > c.cfg.Retry.MaxRetries {
			final := fmt.Errorf("%w: %d attempts: %w", ErrConnectionFailed, failures, err)
			select {
			case c.exhausted <- final:
			default:
			}
			c.stop()
		}
		return
	}

	if failures >= c.cfg.Retry.MaxRetries {
		c.giveUp(fmt.Errorf("%w: gave up after %d reconnect attempts: %w", ErrConnectionFailed, failures, err))
		return
	}

	c.callbackMu.RLock()
	callback := c.onReconnecting
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(failures+1, err)
	}
}

// giveUp stops reconnecting and reports the interruption once.
func (c *Client) giveUp(err error) {
	if !c.stop() {
		return
	}

	c.callbackMu.RLock()
	callback := c.onInterrupted
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// stop cancels the connection manager. It reports whether this call did
// the stopping.
func (c *Client) stop() bool {
	stopped := false
	c.stopOnce.Do(func() {
		stopped = true
		close(c.stopped)
		if c.cancel != nil {
			c.cancel()
		}
	})
	return stopped
}

// Disconnect sends DISCONNECT when connected and stops the connection
// manager. Safe to call when Connect failed or was never called.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	c.closing.Store(true)
	defer c.stop()

	if err := c.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("mqtt5 disconnect: %w", err)
	}
	return nil
}

// SetOnReconnected sets a callback invoked when a dropped connection is
// restored. It is not invoked for the initial connection.
func (c *Client) SetOnReconnected(callback func()) {
	c.callbackMu.Lock()
	c.onReconnected = callback
	c.callbackMu.Unlock()
}

// SetOnReconnecting sets a callback invoked when a reconnect attempt is
// about to start. cause is the error that ended the previous connection
// or attempt.
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

// SetOnPublishFailed sets a callback invoked when an acknowledged publish
// fails after Publish returned.
func (c *Client) SetOnPublishFailed(callback func(topic, messageID string, err error)) {
	c.callbackMu.Lock()
	c.onPublishFailed = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and publish errors.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
