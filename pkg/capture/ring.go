package capture

import (
	"sync/atomic"
)

// AudioFrame is the unit delivered by the capture adapter's non-blocking
// callback. It must never be retained past the call that produced it; the
// ring buffer copies out whatever it needs.
type AudioFrame struct {
	PTSNanos   int64
	SampleRate int
	Channels   int
	Samples    []float32
}

// sidecarRecord pairs one producer batch with the presentation timestamp of
// its first sample, so the consumer can reconstruct per-sample timestamps
// after the raw floats have been copied into the contiguous ring.
type sidecarRecord struct {
	ptsNanos int64
	length   int
}

const sidecarCapacity = 512

// RingBuffer is a single-producer/single-consumer lock-free circular buffer
// of float32 samples, sized for roughly 10s of audio per spec.md section 4.2
// item 2/3. The producer is the platform capture callback; the consumer is
// the audio processor's drain loop. No mutex is used on the hot path —
// only the producer ever advances writePos/sideHead, and only the consumer
// ever advances readPos/sideTail.
type RingBuffer struct {
	samples  []float32
	capacity int

	writePos atomic.Uint64
	readPos  atomic.Uint64

	sidecar  [sidecarCapacity]sidecarRecord
	sideHead atomic.Uint64
	sideTail atomic.Uint64

	framesDropped atomic.Uint64
}

// NewRingBuffer allocates a ring sized for capacitySamples samples. Callers
// typically compute this as seconds * sampleRate * channels.
func NewRingBuffer(capacitySamples int) *RingBuffer {
	return &RingBuffer{
		samples:  make([]float32, capacitySamples),
		capacity: capacitySamples,
	}
}

// Push copies one producer batch into the ring. If there is not enough free
// space, the batch is dropped in its entirety (drop-newest, per the capture
// ring's backpressure policy) and FramesDropped is incremented. Push must
// only ever be called from the producer (callback) goroutine.
func (rb *RingBuffer) Push(ptsNanos int64, samples []float32) bool {
	if len(samples) == 0 {
		return true
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	used := writePos - readPos
	free := uint64(rb.capacity) - used
	if uint64(len(samples)) > free {
		rb.framesDropped.Add(1)
		return false
	}

	sideHead := rb.sideHead.Load()
	sideTail := rb.sideTail.Load()
	if sideHead-sideTail >= sidecarCapacity {
		rb.framesDropped.Add(1)
		return false
	}

	start := int(writePos % uint64(rb.capacity))
	n := copy(rb.samples[start:], samples)
	if n < len(samples) {
		copy(rb.samples[0:], samples[n:])
	}

	rb.sidecar[sideHead%sidecarCapacity] = sidecarRecord{ptsNanos: ptsNanos, length: len(samples)}
	rb.sideHead.Add(1)
	rb.writePos.Add(uint64(len(samples)))
	return true
}

// Drain pops the oldest producer batch and returns a freshly allocated copy
// of its samples along with the PTS of its first sample. ok is false when
// the ring currently holds no complete batch. Drain must only ever be
// called from the consumer (processor) goroutine.
func (rb *RingBuffer) Drain() (samples []float32, ptsNanos int64, ok bool) {
	sideTail := rb.sideTail.Load()
	sideHead := rb.sideHead.Load()
	if sideTail == sideHead {
		return nil, 0, false
	}

	rec := rb.sidecar[sideTail%sidecarCapacity]
	readPos := rb.readPos.Load()

	out := make([]float32, rec.length)
	start := int(readPos % uint64(rb.capacity))
	n := copy(out, rb.samples[start:])
	if n < rec.length {
		copy(out[n:], rb.samples[0:])
	}

	rb.readPos.Add(uint64(rec.length))
	rb.sideTail.Add(1)
	return out, rec.ptsNanos, true
}

// FramesDropped returns the running count of batches dropped because the
// ring was full when Push was called.
func (rb *RingBuffer) FramesDropped() uint64 {
	return rb.framesDropped.Load()
}
