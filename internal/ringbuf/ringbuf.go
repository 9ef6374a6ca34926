// Package ringbuf implements a lock-free single-producer single-consumer
// ring buffer of float32 audio samples, sized to absorb a full dictation
// session without the capture callback ever blocking on a consumer.
//
// New returns the two halves as distinct, move-only types rather than one
// struct exposing both Push and Drain: a Producer belongs to the realtime
// device-callback goroutine, a Consumer belongs to the capture-worker
// goroutine that drains it, and neither type exposes the other's method.
// That separation is the contract the lock-free index math relies on: one
// writer advancing head, one reader advancing tail, no mutex between them.
package ringbuf

import (
	"log/slog"
	"sync/atomic"
)

// DefaultCapacitySeconds matches the 10-minute sizing the original capture
// engine used ("~100MB for float32 mono at typical rates").
const DefaultCapacitySeconds = 600

// ring is the shared state behind a Producer/Consumer pair. It is never
// exported: callers only ever hold one end of it.
type ring struct {
	buf  []float32
	cap  uint64
	head atomic.Uint64 // next write index (producer-owned)
	tail atomic.Uint64 // next read index (consumer-owned)

	dropped atomic.Uint64
	logger  *slog.Logger
	warned  atomic.Bool
}

// Producer is the write-only handle a single goroutine uses to push samples.
type Producer struct{ r *ring }

// Consumer is the read-only handle a single (different) goroutine uses to
// drain samples the Producer has pushed.
type Consumer struct{ r *ring }

// New allocates a ring sized for capacitySamples and returns its Producer
// and Consumer halves. capacitySamples need not be a power of two: the
// modulo index math tolerates any positive capacity.
func New(capacitySamples int, logger *slog.Logger) (*Producer, *Consumer) {
	if capacitySamples <= 0 {
		capacitySamples = DefaultCapacitySeconds * 16000
	}
	r := &ring{
		buf:    make([]float32, capacitySamples),
		cap:    uint64(capacitySamples),
		logger: logger,
	}
	return &Producer{r: r}, &Consumer{r: r}
}

// Cap reports the ring's total sample capacity.
func (p *Producer) Cap() int { return int(p.r.cap) }

// Dropped reports the cumulative number of samples dropped due to overflow.
func (p *Producer) Dropped() uint64 { return p.r.dropped.Load() }

// Push appends samples, dropping the newest input once the ring is full.
// This keeps already-buffered (older) audio intact so the consumer can
// still drain a contiguous history; it logs an overflow warning once per
// session rather than once per callback. It returns the number of samples
// actually accepted.
func (p *Producer) Push(samples []float32) int {
	r := p.r
	if len(samples) == 0 {
		return 0
	}

	head := r.head.Load()
	tail := r.tail.Load()
	free := r.cap - (head - tail)

	n := uint64(len(samples))
	if n > free {
		dropped := n - free
		r.dropped.Add(dropped)
		if r.warned.CompareAndSwap(false, true) && r.logger != nil {
			r.logger.Warn("ring buffer overflow; dropping newest samples", "capacity", r.cap)
		}
		samples = samples[:free]
		n = free
	}
	if n == 0 {
		return 0
	}

	for i, s := range samples {
		r.buf[(head+uint64(i))%r.cap] = s
	}
	r.head.Store(head + n)
	return int(n)
}

// Cap reports the ring's total sample capacity.
func (c *Consumer) Cap() int { return int(c.r.cap) }

// Dropped reports the cumulative number of samples dropped due to overflow.
func (c *Consumer) Dropped() uint64 { return c.r.dropped.Load() }

// Len reports the number of unread samples currently buffered.
func (c *Consumer) Len() int {
	return int(c.r.head.Load() - c.r.tail.Load())
}

// Drain moves all currently available samples into dst (appended) and
// advances the read cursor. It never blocks.
func (c *Consumer) Drain(dst []float32) []float32 {
	r := c.r
	head := r.head.Load()
	tail := r.tail.Load()
	n := head - tail
	if n == 0 {
		return dst
	}

	for i := uint64(0); i < n; i++ {
		dst = append(dst, r.buf[(tail+i)%r.cap])
	}
	r.tail.Store(head)
	return dst
}
