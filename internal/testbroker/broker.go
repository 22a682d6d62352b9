// Package testbroker runs an in-process MQTT broker for tests.
//
// It accepts MQTT 3.1.1 and 5 clients on a random loopback port and
// captures every client message published to the broker. $SYS topics are
// not captured.
//
//	b := testbroker.Start(t)
//	// connect a client to b.URL and publish
//	msg := b.Next(t, time.Second)
package testbroker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// captureBuffer bounds the number of messages held before tests read them.
const captureBuffer = 256

// Message is a captured publish.
type Message struct {
	Topic       string
	Payload     []byte
	QoS         byte
	ContentType string

	// User holds MQTT v5 user properties. Empty for v3 publishes.
	User map[string]string
}

// Broker is a running in-process broker.
type Broker struct {
	// URL is the tcp:// address clients connect to.
	URL string

	server   *mqtt.Server
	messages chan Message

	closeOnce sync.Once
	closeErr  error
}

// Start launches a broker and stops it when the test ends.
func Start(t testing.TB) *Broker {
	t.Helper()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("testbroker: adding auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "imagepub-test",
		Address: "127.0.0.1:0",
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("testbroker: adding listener: %v", err)
	}

	b := &Broker{
		URL:      fmt.Sprintf("tcp://%s", tcp.Address()),
		server:   server,
		messages: make(chan Message, captureBuffer),
	}

	err := server.Subscribe("#", 1, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		// Broker statistics are published under $SYS.
		if strings.HasPrefix(pk.TopicName, "$") {
			return
		}

		msg := Message{
			Topic:       pk.TopicName,
			Payload:     append([]byte(nil), pk.Payload...),
			QoS:         pk.FixedHeader.Qos,
			ContentType: pk.Properties.ContentType,
			User:        make(map[string]string, len(pk.Properties.User)),
		}
		for _, p := range pk.Properties.User {
			msg.User[p.Key] = p.Val
		}

		select {
		case b.messages <- msg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("testbroker: subscribing capture: %v", err)
	}

	if err := server.Serve(); err != nil {
		t.Fatalf("testbroker: serving: %v", err)
	}

	t.Cleanup(func() {
		_ = b.Close()
	})

	return b
}

// Next returns the next captured message or fails the test after timeout.
func (b *Broker) Next(t testing.TB, timeout time.Duration) Message {
	t.Helper()

	select {
	case msg := <-b.messages:
		return msg
	case <-time.After(timeout):
		t.Fatalf("testbroker: no message within %v", timeout)
		return Message{}
	}
}

// Drain returns every message captured so far without waiting.
func (b *Broker) Drain() []Message {
	var out []Message
	for {
		select {
		case msg := <-b.messages:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// Close stops the broker, dropping every client connection.
// Safe to call more than once.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.server.Close()
	})
	return b.closeErr
}
