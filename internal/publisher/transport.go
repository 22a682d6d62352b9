package publisher

import (
	"context"

	"github.com/nerrad567/imagepub/internal/image"
)

// Transport is the broker client the Session drives. It owns a
// connection handle and a publisher handle.
//
// The Session guarantees the call order
//
//	Connect → StartPublisher → Publish* → Terminate → Disconnect
//
// and calls Terminate and Disconnect at most once each. When Connect
// fails only Disconnect follows.
type Transport interface {
	// Connect blocks until the broker connection is up or the transport's
	// retry budget is spent. events receives connection lifecycle
	// notifications for as long as the connection lives.
	Connect(ctx context.Context, events ServiceEventListener) error

	// StartPublisher blocks until the publisher handle is ready. failures
	// receives asynchronous publish failures.
	StartPublisher(ctx context.Context, failures PublishFailureListener) error

	// Publish sends one message fire-and-forget: it returns once the
	// message is handed to the client, without waiting for delivery.
	// A returned error ends the run. Wrap ErrConnectionLost when the
	// connection will not come back; delivery failures noticed later go
	// to the PublishFailureListener instead.
	Publish(ctx context.Context, msg *image.Message) error

	// Terminate stops the publisher handle, waiting for in-flight
	// publishes until ctx expires.
	Terminate(ctx context.Context) error

	// Disconnect closes the broker connection.
	Disconnect(ctx context.Context) error
}
