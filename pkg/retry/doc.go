// Package retry provides exponential backoff for transient failures.
//
// Do calls a function until it succeeds, the attempts run out or the
// context is done:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Errors wrapped with NonRetryable, and errors classified as invalid or
// fatal by the errors package, end the loop immediately.
//
// Presets:
//
//   - DefaultConfig: 3 attempts, 100ms to 5s
//   - Quick: 10 attempts, 50ms to 1s (connections made when a run starts)
//   - Persistent: 30 attempts, 200ms to 10s (services waiting on NATS)
package retry
