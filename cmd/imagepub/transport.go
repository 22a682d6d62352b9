package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/imagepub/internal/image"
	"github.com/nerrad567/imagepub/internal/infrastructure/config"
	"github.com/nerrad567/imagepub/internal/infrastructure/logging"
	"github.com/nerrad567/imagepub/internal/infrastructure/mqtt"
	"github.com/nerrad567/imagepub/internal/infrastructure/mqtt5"
	"github.com/nerrad567/imagepub/internal/publisher"
)

// newTransport picks the broker client for broker.protocol.
func newTransport(cfg *config.Config, log *logging.Logger) publisher.Transport {
	if cfg.Broker.Protocol == config.ProtocolMQTT3 {
		return &mqtt3Transport{cfg: cfg, log: log}
	}
	return &mqtt5Transport{cfg: cfg, log: log}
}

// connectionEvents forwards client callbacks to a session listener.
type connectionEvents struct {
	listener publisher.ServiceEventListener
}

func (e connectionEvents) reconnecting(attempt int, cause error) {
	publisher.Dispatch(e.listener, publisher.ServiceEvent{
		Kind:    publisher.EventReconnecting,
		Cause:   cause,
		Message: fmt.Sprintf("reconnect attempt %d", attempt),
	})
}

func (e connectionEvents) reconnected() {
	publisher.Dispatch(e.listener, publisher.ServiceEvent{
		Kind:    publisher.EventReconnected,
		Message: "connection restored",
	})
}

func (e connectionEvents) interrupted(err error) {
	publisher.Dispatch(e.listener, publisher.ServiceEvent{
		Kind:    publisher.EventServiceInterrupted,
		Cause:   err,
		Message: "reconnect attempts exhausted",
	})
}

// publishFailures forwards client publish failures to a session listener.
func publishFailures(l publisher.PublishFailureListener) func(topic, messageID string, err error) {
	return func(topic, messageID string, err error) {
		l.OnFailedPublish(publisher.FailureEvent{
			Topic:     topic,
			MessageID: messageID,
			Cause:     err,
			Message:   fmt.Sprintf("delivery of %s failed", messageID),
			Time:      time.Now(),
		})
	}
}

// lostConnection marks client errors that mean the connection will not
// come back, so the session ends the run instead of moving on.
func lostConnection(err error) error {
	if errors.Is(err, mqtt.ErrConnectionLost) || errors.Is(err, mqtt5.ErrConnectionLost) {
		return fmt.Errorf("%w: %w", publisher.ErrConnectionLost, err)
	}
	return err
}

// mqtt3Transport adapts the MQTT 3.1.1 client to publisher.Transport.
type mqtt3Transport struct {
	cfg    *config.Config
	log    *logging.Logger
	client *mqtt.Client
}

func (t *mqtt3Transport) Connect(ctx context.Context, events publisher.ServiceEventListener) error {
	client, err := mqtt.NewClient(t.cfg)
	if err != nil {
		return err
	}
	t.client = client

	forward := connectionEvents{listener: events}
	client.SetLogger(t.log)
	client.SetOnReconnecting(forward.reconnecting)
	client.SetOnReconnected(forward.reconnected)
	client.SetOnInterrupted(forward.interrupted)

	return client.Connect(ctx)
}

func (t *mqtt3Transport) StartPublisher(ctx context.Context, failures publisher.PublishFailureListener) error {
	if err := t.client.HealthCheck(ctx); err != nil {
		return err
	}
	t.client.SetOnPublishFailed(publishFailures(failures))
	return nil
}

func (t *mqtt3Transport) Publish(ctx context.Context, msg *image.Message) error {
	return lostConnection(t.client.Publish(ctx, msg.Topic, mqtt.Envelope{
		ID:         msg.ID,
		Properties: msg.Properties,
		Body:       msg.Body,
	}))
}

func (t *mqtt3Transport) Terminate(ctx context.Context) error {
	return t.client.Drain(ctx)
}

func (t *mqtt3Transport) Disconnect(_ context.Context) error {
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}

// mqtt5Transport adapts the MQTT v5 client to publisher.Transport.
type mqtt5Transport struct {
	cfg    *config.Config
	log    *logging.Logger
	client *mqtt5.Client
}

func (t *mqtt5Transport) Connect(ctx context.Context, events publisher.ServiceEventListener) error {
	client, err := mqtt5.NewClient(t.cfg)
	if err != nil {
		return err
	}
	t.client = client

	forward := connectionEvents{listener: events}
	client.SetLogger(t.log)
	client.SetOnReconnecting(forward.reconnecting)
	client.SetOnReconnected(forward.reconnected)
	client.SetOnInterrupted(forward.interrupted)

	return client.Connect(ctx)
}

func (t *mqtt5Transport) StartPublisher(_ context.Context, failures publisher.PublishFailureListener) error {
	t.client.SetOnPublishFailed(publishFailures(failures))
	return nil
}

func (t *mqtt5Transport) Publish(ctx context.Context, msg *image.Message) error {
	return lostConnection(t.client.Publish(ctx, mqtt5.Message{
		Topic:       msg.Topic,
		ID:          msg.ID,
		ContentType: msg.ContentType(),
		Properties:  msg.Properties,
		Body:        []byte(msg.Body),
	}))
}

func (t *mqtt5Transport) Terminate(ctx context.Context) error {
	return t.client.Drain(ctx)
}

func (t *mqtt5Transport) Disconnect(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	return t.client.Disconnect(ctx)
}
