package audioproc

import (
	"github.com/meetloop-ai/meetloop-core/pkg/core"
)

const (
	sampleRate = 16000

	minContiguousSpeechMs = 200
	hangoverMs            = 300
	softWindowMs          = 4000
	hardWindowMs          = 6000
	minChunkMs            = 2000
	overlapMs             = 1000
)

func msToSamples(ms int64) int {
	return int(ms) * sampleRate / 1000
}

func samplesToMs(n int) int64 {
	return int64(n) * 1000 / sampleRate
}

// AudioChunk is a bounded, speech-gated PCM window ready for transcription.
type AudioChunk struct {
	Source     core.Source
	StartPTSNs int64
	SampleRate int
	Samples    []float32
}

func (c AudioChunk) DurationMs() int64 {
	return samplesToMs(len(c.Samples))
}

type chunkerState int

const (
	stateIdle chunkerState = iota
	stateActive
)

// Chunker implements the speech-gated chunk state machine of spec.md
// section 4.2: it opens a chunk after ~200ms of contiguous speech, closes
// it on a 300ms hangover or a 4s soft window, force-closes at 6s, and
// retains a 1s overlap-prefix into the next chunk. Chunks shorter than 2s
// are suppressed, including the one flushed by Stop.
type Chunker struct {
	source core.Source
	state  chunkerState

	// pending holds frames accumulated while confirming a contiguous
	// speech streak in Idle state, before a chunk is formally opened.
	pending     []float32
	pendingPTS  int64
	speechMsRun int64

	// overlap holds the trailing 1s of the most recently emitted chunk,
	// prepended to the next one that opens.
	overlap    []float32
	overlapPTS int64

	// buf holds the samples of the currently open chunk.
	buf        []float32
	chunkStart int64
	silenceMs  int64
}

func NewChunker(source core.Source) *Chunker {
	return &Chunker{source: source}
}

// Feed processes one FrameSamples-long 16kHz frame whose first sample has
// presentation timestamp frameStartPTSNs, given its speech probability.
// It returns an emitted AudioChunk when the state machine closes one.
func (c *Chunker) Feed(frame []float32, frameStartPTSNs int64, probability float64) (AudioChunk, bool) {
	frameMs := samplesToMs(len(frame))
	isSpeech := probability >= SpeechThreshold

	switch c.state {
	case stateIdle:
		if isSpeech {
			if len(c.pending) == 0 {
				c.pendingPTS = frameStartPTSNs
			}
			c.pending = append(c.pending, frame...)
			c.speechMsRun += frameMs
			if c.speechMsRun >= minContiguousSpeechMs {
				c.openChunk()
			}
		} else {
			c.pending = nil
			c.speechMsRun = 0
		}
		return AudioChunk{}, false

	case stateActive:
		c.buf = append(c.buf, frame...)
		if isSpeech {
			c.silenceMs = 0
		} else {
			c.silenceMs += frameMs
		}

		windowMs := samplesToMs(len(c.buf))

		if windowMs >= hardWindowMs {
			return c.emit(msToSamples(hardWindowMs)), true
		}
		if c.silenceMs >= hangoverMs || windowMs >= softWindowMs {
			if windowMs < minChunkMs {
				c.reset()
				return AudioChunk{}, false
			}
			return c.emit(len(c.buf)), true
		}
		return AudioChunk{}, false
	}
	return AudioChunk{}, false
}

// Stop flushes any open chunk: emitted if it has reached the 2s minimum,
// otherwise dropped. Either way the chunker returns to idle with no
// overlap carried forward, since Stop ends the session.
func (c *Chunker) Stop() (AudioChunk, bool) {
	c.overlap = nil
	if c.state != stateActive {
		c.reset()
		return AudioChunk{}, false
	}
	windowMs := samplesToMs(len(c.buf))
	if windowMs < minChunkMs {
		c.reset()
		return AudioChunk{}, false
	}
	chunk := AudioChunk{
		Source:     c.source,
		StartPTSNs: c.chunkStart,
		SampleRate: sampleRate,
		Samples:    append([]float32(nil), c.buf...),
	}
	c.reset()
	return chunk, true
}

// openChunk transitions Idle -> Active, prepending any retained
// overlap-prefix from the previous emission ahead of the newly confirmed
// speech frames.
func (c *Chunker) openChunk() {
	if len(c.overlap) > 0 {
		c.buf = append(append([]float32(nil), c.overlap...), c.pending...)
		c.chunkStart = c.overlapPTS
		c.overlap = nil
	} else {
		c.buf = append([]float32(nil), c.pending...)
		c.chunkStart = c.pendingPTS
	}
	c.pending = nil
	c.speechMsRun = 0
	c.silenceMs = 0
	c.state = stateActive
}

// emit closes the current chunk at keepSamples, retains its trailing 1s as
// the overlap-prefix for whatever chunk opens next, and returns to Idle.
func (c *Chunker) emit(keepSamples int) AudioChunk {
	samples := c.buf
	if keepSamples < len(samples) {
		samples = samples[:keepSamples]
	}

	chunk := AudioChunk{
		Source:     c.source,
		StartPTSNs: c.chunkStart,
		SampleRate: sampleRate,
		Samples:    append([]float32(nil), samples...),
	}

	overlapSamples := msToSamples(overlapMs)
	if overlapSamples > len(samples) {
		overlapSamples = len(samples)
	}
	c.overlap = append([]float32(nil), samples[len(samples)-overlapSamples:]...)
	c.overlapPTS = chunk.StartPTSNs + samplesToMs(len(samples)-overlapSamples)*int64(1e6)

	c.buf = nil
	c.pending = nil
	c.speechMsRun = 0
	c.silenceMs = 0
	c.state = stateIdle

	return chunk
}

func (c *Chunker) reset() {
	c.state = stateIdle
	c.buf = nil
	c.pending = nil
	c.speechMsRun = 0
	c.silenceMs = 0
}
