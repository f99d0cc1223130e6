// Package worker provides a generic worker pool with a bounded queue.
//
// Work is submitted with Submit, which never blocks and reports ErrQueueFull
// when the queue is at capacity, or with SubmitWait, which waits for room.
// Stop closes the queue and lets the workers finish what was already
// accepted:
//
//	pool := worker.NewPool(1, 256, func(ctx context.Context, ev event.Event) error {
//	    return model.Apply(ev)
//	})
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// A pool with one worker is a single-writer executor: items run one at a
// time, in submission order, on the same goroutine.
//
// Statistics are always tracked (Stats). Prometheus metrics are registered
// only when WithMetricsRegistry is given a prefix.
package worker
