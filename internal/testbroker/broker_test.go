package testbroker

import (
	"strings"
	"testing"
	"time"
)

func TestNext_SkipsSysTopics(t *testing.T) {
	b := Start(t)

	// Give the broker time to publish its periodic $SYS statistics.
	time.Sleep(1500 * time.Millisecond)

	if err := b.server.Publish("solace/images/a.png", []byte("iVBORw0K"), false, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg := b.Next(t, 5*time.Second)
	if msg.Topic != "solace/images/a.png" {
		t.Errorf("Topic = %q, want solace/images/a.png", msg.Topic)
	}
	if string(msg.Payload) != "iVBORw0K" {
		t.Errorf("Payload = %q, want iVBORw0K", msg.Payload)
	}

	for _, m := range b.Drain() {
		if strings.HasPrefix(m.Topic, "$") {
			t.Errorf("captured broker topic %q", m.Topic)
		}
	}
}

func TestClose_Twice(t *testing.T) {
	b := Start(t)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
