package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// entry pairs a record with the handler it was logged through, so
// attributes and groups added via With survive the queue hop.
type entry struct {
	h   slog.Handler
	rec slog.Record
}

// asyncCore is the state shared by the root AsyncHandler and every
// derivative produced by WithAttrs or WithGroup.
type asyncCore struct {
	queue   chan entry
	done    chan struct{}
	dropped atomic.Int64
	drops   metric.Int64Counter
}

// AsyncHandler decouples log emission from log writing: Handle enqueues
// and a single background worker does the formatting and I/O. When the
// queue is full the record is dropped rather than blocking the caller;
// drops are counted and reported through the crucible.logger.dropped
// counter and a summary line on Close.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner with a drop-on-full queue of the given
// capacity. A capacity below one falls back to a single slot.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	if capacity < 1 {
		capacity = 1
	}
	core := &asyncCore{
		queue: make(chan entry, capacity),
		done:  make(chan struct{}),
	}
	if c, err := otel.Meter("crucible").Int64Counter("crucible.logger.dropped",
		metric.WithDescription("Log records dropped because the async queue was full")); err == nil {
		core.drops = c
	}
	h := &AsyncHandler{inner: inner, core: core}
	go core.run()
	return h
}

func (c *asyncCore) run() {
	defer close(c.done)
	for e := range c.queue {
		_ = e.h.Handle(context.Background(), e.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record against this handler's own inner chain.
// A full queue drops the record instead of blocking the caller.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.queue <- entry{h: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
		if h.core.drops != nil {
			h.core.drops.Add(context.Background(), 1)
		}
	}
	return nil
}

// WithAttrs returns a handler sharing the queue; the derived inner
// handler rides along with each record so the attrs are not lost.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup returns a handler sharing the queue, see WithAttrs.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of records dropped so far.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops accepting new records, drains the queue, and writes a
// summary line straight through the inner handler if anything was
// dropped. Must be called exactly once, and only on the root handler.
func (h *AsyncHandler) Close() {
	close(h.core.queue)
	<-h.core.done
	if n := h.core.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn,
			fmt.Sprintf("async logger dropped %d records", n), 0)
		_ = h.inner.Handle(context.Background(), rec)
	}
}
