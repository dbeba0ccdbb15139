package capture

import (
	"encoding/binary"
	"math"
	"os"
	"sync/atomic"

	"github.com/meetloop-ai/meetloop-core/pkg/core"
)

// writerQueueCapacity bounds the raw-audio writer queue to roughly 2s of
// 48kHz mono float32 samples in typical push sizes, per section 5's
// backpressure table.
const writerQueueCapacity = 64

// AudioWriter is the crash-safe raw PCM persistence stage named in section
// 5: a dedicated goroutine draining a bounded queue fed by the processor,
// appending interleaved float32 little-endian samples to a session's
// audio.raw file. On overflow it drops the oldest queued batch and
// increments AudioWritesDropped; unlike the capture ring, which rejects the
// newest batch when full.
type AudioWriter struct {
	queue  chan []float32
	done   chan struct{}
	file   *os.File
	logger core.Logger

	audioWritesDropped atomic.Uint64
}

// NewAudioWriter opens (or creates) path for append and returns a writer
// whose Run method must be started in its own goroutine.
func NewAudioWriter(path string, logger core.Logger) (*AudioWriter, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &AudioWriter{
		queue:  make(chan []float32, writerQueueCapacity),
		done:   make(chan struct{}),
		file:   f,
		logger: logger,
	}, nil
}

// Push enqueues a batch of samples for persistence, dropping the oldest
// queued batch if the queue is full.
func (w *AudioWriter) Push(samples []float32) {
	cp := make([]float32, len(samples))
	copy(cp, samples)

	select {
	case w.queue <- cp:
		return
	default:
	}

	// Queue full: drop the oldest entry to make room, then enqueue.
	select {
	case <-w.queue:
		w.audioWritesDropped.Add(1)
	default:
	}
	select {
	case w.queue <- cp:
	default:
		w.audioWritesDropped.Add(1)
	}
}

// AudioWritesDropped reports the running drop count.
func (w *AudioWriter) AudioWritesDropped() uint64 {
	return w.audioWritesDropped.Load()
}

// Run drains the queue until Stop is called, writing each batch to disk.
// It is meant to be the body of the dedicated audio-writer thread named in
// section 5.
func (w *AudioWriter) Run() {
	buf := make([]byte, 0, 4096)
	for {
		select {
		case samples, ok := <-w.queue:
			if !ok {
				return
			}
			buf = buf[:0]
			for _, s := range samples {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
				buf = append(buf, b[:]...)
			}
			if _, err := w.file.Write(buf); err != nil {
				w.logger.Error("audio writer failed", "error", err)
			}
		case <-w.done:
			return
		}
	}
}

// Stop signals Run to exit and closes the backing file.
func (w *AudioWriter) Stop() {
	close(w.done)
	_ = w.file.Close()
}
