package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/imagepub/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from imagepub config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on the host scheme)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Auto-reconnect after the first successful connection
//   - TLS configuration for secure schemes
//   - Clean session mode
//
// Initial connection retries are driven by Client.Connect, not by paho,
// so the attempt count stays bounded.
func buildClientOptions(cfg *config.Config) (*pahomqtt.ClientOptions, error) {
	brokerURL, err := cfg.BrokerURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL.String())

	// Client identification
	opts.SetClientID(cfg.ClientID())

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Reconnect after a drop; the reconnect budget is enforced in the
	// reconnecting handler.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.Retry.Interval > 0 {
		opts.SetConnectRetryInterval(cfg.Retry.Interval)
		opts.SetMaxReconnectInterval(cfg.Retry.Interval)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Publishes are fire-and-forget; the client must not block the loop
	// while the connection is down.
	opts.SetOrderMatters(false)

	if cfg.UseTLS() {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: cfg.Broker.TLS.SkipVerify, //nolint:gosec // opt-in via broker.tls.skip_verify
		})
	}

	return opts, nil
}
