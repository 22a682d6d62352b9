package mqtt5

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

// PropertyMessageID is the user property carrying the application
// message ID, which MQTT v5 has no native field for.
const PropertyMessageID = "message-id"

// reconnectPoll is how often a publish re-checks the connection while
// the manager is reconnecting.
const reconnectPoll = 50 * time.Millisecond

// Message is one outbound publish.
type Message struct {
	Topic       string
	ID          string
	ContentType string
	Properties  map[string]string
	Body        []byte
}

// Publish sends msg without waiting for delivery.
//
// msg.Properties become user properties, sorted by key, followed by
// message-id. ContentType is also set natively. QoS comes from
// publish.qos. At QoS 0 Publish returns once the packet is written; at
// QoS 1 and 2 the acknowledgement is awaited in the background and a
// failure reaches the OnPublishFailed callback. Use Drain to wait for
// outstanding acknowledgements.
//
// While the manager is reconnecting Publish waits for the connection to
// come back. Once the reconnect budget is spent it returns
// ErrConnectionLost without waiting.
//
// Returns:
//   - error: nil once written or queued, ErrConnectionLost, or wraps
//     ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return ErrInvalidTopic
	}
	qos := c.cfg.Publish.QoS
	if qos < 0 || qos > 2 {
		return ErrInvalidQoS
	}
	if err := c.awaitConnection(ctx); err != nil {
		return err
	}

	pb := buildPublish(msg, byte(qos))

	if qos == 0 {
		if _, err := c.cm.Publish(ctx, pb); err != nil {
			if c.isStopped() {
				return fmt.Errorf("%w: %w", ErrConnectionLost, err)
			}
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		return nil
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		resp, err := c.cm.Publish(context.WithoutCancel(ctx), pb)
		if err == nil && resp != nil && resp.ReasonCode >= 0x80 {
			err = fmt.Errorf("reason code %d", resp.ReasonCode)
		}
		if err != nil {
			c.reportPublishFailure(msg.Topic, msg.ID, err)
		}
	}()

	return nil
}

// awaitConnection returns nil while connected. During a reconnect cycle
// it blocks until the connection is back, the manager is stopped or ctx
// ends.
func (c *Client) awaitConnection(ctx context.Context) error {
	if c.cm == nil || c.closing.Load() {
		return ErrNotConnected
	}

	ticker := time.NewTicker(reconnectPoll)
	defer ticker.Stop()

	for {
		if c.isStopped() {
			return ErrConnectionLost
		}
		if !c.down.Load() {
			return nil
		}

		select {
		case <-c.stopped:
			return ErrConnectionLost
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotConnected, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// buildPublish maps a Message onto a paho publish packet.
func buildPublish(msg Message, qos byte) *paho.Publish {
	keys := make([]string, 0, len(msg.Properties))
	for k := range msg.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	user := make(paho.UserProperties, 0, len(keys)+1)
	for _, k := range keys {
		user = append(user, paho.UserProperty{Key: k, Value: msg.Properties[k]})
	}
	if msg.ID != "" {
		user = append(user, paho.UserProperty{Key: PropertyMessageID, Value: msg.ID})
	}

	return &paho.Publish{
		Topic:   msg.Topic,
		QoS:     qos,
		Payload: msg.Body,
		Properties: &paho.PublishProperties{
			ContentType: msg.ContentType,
			User:        user,
		},
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
		logger.Error("mqtt5 publish failed", "topic", topic, "message_id", messageID, "error", err)
	}
}

// Drain waits until every acknowledged publish has completed or ctx ends.
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
