// Package worker provides a generic, bounded worker pool.
//
// A Pool runs a fixed number of goroutines that drain a bounded queue. Submit
// never blocks: when the queue is full it returns ErrQueueFull so the caller
// can shed load instead of stalling an HTTP handler.
//
//	pool := worker.NewPool[*message.Unit](4, 64,
//	    func(ctx context.Context, unit *message.Unit) error {
//	        return services.Process(ctx, unit)
//	    },
//	    worker.WithMetricsRegistry[*message.Unit](registry, "orders"),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// # Lifecycle
//
// Stop closes the queue and waits for queued items to drain. A stopped pool
// may be resized with Resize and started again; Start creates a fresh queue.
// The pooling workflow relies on this so that a restart re-derives admission
// capacity from the new worker count.
//
// # Observability
//
// Stats are always tracked with atomics. When a metrics registry is supplied
// the pool also exports queue depth, utilization, throughput and processing
// time under exchangegate_worker_pool_* with a pool label.
package worker
