package magiclink

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples link issuance and validation from sink latency.
// Events are queued and delivered by one background worker, so a slow sink
// never stalls a login decision. With DropIfFull the queue sheds load instead
// of blocking; shed events are counted, not silently lost.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	quit       chan struct{}
	dropOnFull bool
	dropped    atomic.Uint64
	stopping   atomic.Bool
	stopOnce   sync.Once
	worker     sync.WaitGroup
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, cfg.BufferSize),
		quit:       make(chan struct{}),
		dropOnFull: cfg.DropIfFull,
	}

	d.worker.Add(1)
	go d.deliver()

	return d
}

// deliver is the worker loop. On shutdown it flushes whatever is still queued
// before exiting, so Close never discards accepted events.
func (d *auditDispatcher) deliver() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

func (d *auditDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues one audit event. Under DropIfFull a full queue increments the
// drop counter instead of blocking the caller; otherwise the caller waits
// until the queue accepts, the context expires, or the dispatcher stops.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopping.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropOnFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops the worker and waits for queued events to reach the sink.
// Idempotent; Emit calls after Close are no-ops.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.quit)
		d.worker.Wait()
	})
}

// Dropped reports how many events were shed under backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
