// Package transcribe implements the transcriber worker of spec.md section
// 4.4: the chunk queue connecting the audio processor to a single pulling
// worker, and the worker itself, including retry/backoff for transient
// provider errors and live backend switching.
package transcribe

import (
	"sync"
	"sync/atomic"

	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
)

// queueCapacity is the bounded chunk queue's capacity, per spec.md
// section 4.3.
const queueCapacity = 4

// ChunkQueue is the bounded queue of spec.md section 4.3: capacity 4,
// drop-oldest overflow. It favors the freshest speech over completeness,
// since a stalled transcriber should not make the processor pile up stale
// audio. The processor is the sole producer; the transcriber worker is the
// sole consumer, reading directly from Chunks().
type ChunkQueue struct {
	ch chan audioproc.AudioChunk

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// NewChunkQueue constructs an empty ChunkQueue at the standing capacity.
func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{ch: make(chan audioproc.AudioChunk, queueCapacity)}
}

// Push enqueues a chunk. When the queue is already at capacity, the oldest
// queued chunk is discarded and ChunksDropped is incremented, per the
// drop-oldest overflow policy. Push must only ever be called from the
// processor (producer) goroutine.
func (q *ChunkQueue) Push(chunk audioproc.AudioChunk) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}

	select {
	case q.ch <- chunk:
		return
	default:
	}

	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}

	select {
	case q.ch <- chunk:
	default:
		// The consumer raced us for the slot freed above; the newest chunk
		// loses rather than spinning, which still favors freshness overall.
		q.dropped.Add(1)
	}
}

// Chunks returns the consumer side of the queue. The transcriber worker
// selects on it alongside its command and cancellation channels.
func (q *ChunkQueue) Chunks() <-chan audioproc.AudioChunk { return q.ch }

// Close stops accepting further Push calls and closes the channel so a
// ranging consumer observes the end of the stream. Safe to call once.
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Dropped reports the running count of chunks discarded by overflow, backing
// the CaptureStats.ChunksDropped counter.
func (q *ChunkQueue) Dropped() uint64 {
	return q.dropped.Load()
}
