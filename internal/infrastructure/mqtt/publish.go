package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// maxPayloadSize is the MQTT protocol limit for a packet body.
const maxPayloadSize = 268435455

// reconnectPoll is how often a publish re-checks the connection while
// paho is reconnecting.
const reconnectPoll = 50 * time.Millisecond

// Envelope carries message metadata over MQTT 3.1.1, which has no
// per-message properties.
//
// Wire format:
//
//	{"id":"image-cat.png","properties":{"filename":"cat.png",...},"body":"<base64>"}
type Envelope struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Body       string            `json:"body"`
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope decodes a payload written by Publish.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return e, nil
}

// Publish sends an envelope to topic without waiting for delivery.
//
// It returns once paho has queued the message. If delivery later fails
// the OnPublishFailed callback receives the error. Use Drain to wait for
// queued publishes to complete.
//
// While paho is reconnecting after a drop, Publish waits for the
// connection to come back. Once the reconnect budget is spent it returns
// ErrConnectionLost without waiting.
//
// Parameters:
//   - ctx: Bounds the wait for a reconnect
//   - topic: The topic to publish to (e.g., "solace/images/cat.png")
//   - env: Message ID, properties and body
//
// QoS comes from publish.qos; messages are never retained.
//
// Returns:
//   - error: nil once queued, ErrConnectionLost, or wrapped error
//     describing the failure
func (c *Client) Publish(ctx context.Context, topic string, env Envelope) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	qos := c.cfg.Publish.QoS
	if qos < 0 || qos > maxQoS {
		return ErrInvalidQoS
	}

	payload, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if err := c.awaitConnection(ctx); err != nil {
		return err
	}

	token := c.client.Publish(topic, byte(qos), false, payload)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		<-token.Done()

		if err := token.Error(); err != nil {
			c.reportPublishFailure(topic, env.ID, err)
		}
	}()

	return nil
}

// awaitConnection returns nil while connected. After a drop it blocks
// until paho reconnects, the reconnect budget runs out or ctx ends.
func (c *Client) awaitConnection(ctx context.Context) error {
	ticker := time.NewTicker(reconnectPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.lost:
			return ErrConnectionLost
		default:
		}
		if c.IsConnected() {
			return nil
		}
		// Not yet connected, or closed on purpose: nothing to wait for.
		if !c.everConnected.Load() || c.closed.Load() {
			return ErrNotConnected
		}

		select {
		case <-c.lost:
			return ErrConnectionLost
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotConnected, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) reportPublishFailure(topic, messageID string, err error) {
	err = fmt.Errorf("%w: %w", ErrPublishFailed, err)

	c.callbackMu.RLock()
	callback := c.onPublishFailed
	c.callbackMu.RUnlock()

	if callback != nil {
		callback(topic, messageID, err)
		return
	}
	if logger := c.getLogger(); logger != nil {
		logger.Error("MQTT publish failed", "topic", topic, "message_id", messageID, "error", err)
	}
}

// Drain waits until every queued publish has completed or ctx ends.
//
// Returns:
//   - error: nil when nothing is left in flight, or wraps ErrTimeout
func (c *Client) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: publishes still in flight: %w", ErrTimeout, ctx.Err())
	}
}
