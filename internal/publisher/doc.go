// Package publisher drives the publish pipeline over a broker transport.
//
// A Session walks a list of image files, encoding and assembling each one
// and handing it to a Transport, with a fixed pause between publishes.
//
// # Lifecycle
//
//	disconnected → connecting → connected → publisher_starting → ready
//	    ready → publishing → ready      (once per file)
//	    any   → terminating → closed    (completion, interrupt, panic)
//
// Terminate and Disconnect are each called exactly once, in that order,
// on every exit path after a successful Connect. A failed Connect is
// followed by Disconnect only.
//
// # Errors
//
//   - Unreadable files are skipped and counted (Result.Skipped)
//   - Asynchronous delivery failures go to the PublishFailureListener
//     and are counted (Result.Failed); the loop continues
//   - An error returned by Transport.Publish is counted the same way and
//     ends the run: ErrConnectionFailed when it wraps ErrConnectionLost,
//     ErrPublishLoop otherwise
//   - ErrConnectionFailed and ErrPublisherStartFailed end the run
//   - ErrInterrupted is returned when the context is cancelled
//
// # Observers
//
// ServiceEventListener and PublishFailureListener are passive: the
// default LogListener only logs. Metrics implements both Recorder and
// ServiceEventListener for Prometheus.
//
// # Usage
//
//	session := publisher.NewSession(transport, publisher.DefaultConfig())
//	session.SetLogger(logger)
//	result, err := session.Run(ctx, files)
package publisher
