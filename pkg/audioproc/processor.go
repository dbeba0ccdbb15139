package audioproc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/capture"
	"github.com/meetloop-ai/meetloop-core/pkg/core"
)

const tickInterval = 10 * time.Millisecond

const frameDurationNs = int64(FrameSamples) * 1e9 / sampleRate

// streamState tracks the per-stream pipeline of leftover resampled
// samples waiting to fill a complete detector frame, plus the resampler
// and chunker dedicated to that stream.
type streamState struct {
	source     core.Source
	resampler  *PolyphaseResampler
	detector   SpeechDetector
	chunker    *Chunker
	leftover   []float32
	leftoverOK bool
	framePTS   int64
	channels   int
}

func newStreamState(source core.Source, deviceRate, channels int, detector SpeechDetector) *streamState {
	return &streamState{
		source:    source,
		resampler: NewPolyphaseResampler(deviceRate, sampleRate),
		detector:  detector,
		chunker:   NewChunker(source),
		channels:  channels,
	}
}

// Processor is the dedicated audio-processor thread of spec.md section 4.2:
// it drains both capture rings, downmixes, resamples to 16kHz, runs speech
// detection in 512-sample frames, and feeds each stream's chunker.
type Processor struct {
	adapter    capture.Adapter
	deviceRate int
	channels   int

	mic *streamState
	sys *streamState

	emit   func(AudioChunk)
	onRaw  func(source core.Source, samples []float32)
	logger core.Logger

	paused atomic.Bool
}

// NewProcessor wires one Processor over the given Adapter. emit is called
// for every chunk the chunker state machines produce; onRaw, if non-nil, is
// called with every drained pre-resample batch, for the raw-audio writer
// stage (section 5).
func NewProcessor(adapter capture.Adapter, deviceRate, channels int, newDetector func() SpeechDetector, emit func(AudioChunk), onRaw func(core.Source, []float32), logger core.Logger) *Processor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if newDetector == nil {
		newDetector = func() SpeechDetector { return NewEnergyDetector(0.02) }
	}
	return &Processor{
		adapter:    adapter,
		deviceRate: deviceRate,
		channels:   channels,
		mic:        newStreamState(core.SourceMicrophone, deviceRate, channels, newDetector()),
		sys:        newStreamState(core.SourceSystem, deviceRate, channels, newDetector()),
		emit:       emit,
		onRaw:      onRaw,
		logger:     logger,
	}
}

// Run drives the processor's tick loop until ctx is cancelled, at which
// point it flushes any open chunks via Stop before returning.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// Pause halts draining of new capture frames, per spec.md section 4.7's
// PauseCapture command: any chunk already open in a chunker simply stops
// growing until Resume, rather than being force-flushed.
func (p *Processor) Pause() { p.paused.Store(true) }

// Resume undoes Pause, letting the next tick resume draining both rings.
func (p *Processor) Resume() { p.paused.Store(false) }

func (p *Processor) tick() {
	if p.paused.Load() {
		return
	}
	for {
		frame, ok := p.adapter.TryRecvMic()
		if !ok {
			break
		}
		p.ingest(p.mic, frame)
	}
	for {
		frame, ok := p.adapter.TryRecvSystem()
		if !ok {
			break
		}
		p.ingest(p.sys, frame)
	}
}

func (p *Processor) ingest(st *streamState, frame capture.AudioFrame) {
	mono := Downmix(frame.Samples, frame.Channels)
	if p.onRaw != nil {
		p.onRaw(st.source, mono)
	}
	resampled := st.resampler.Resample(mono)

	if !st.leftoverOK {
		st.framePTS = frame.PTSNanos
		st.leftoverOK = true
	}
	st.leftover = append(st.leftover, resampled...)

	for len(st.leftover) >= FrameSamples {
		frameSamples := st.leftover[:FrameSamples]
		st.leftover = st.leftover[FrameSamples:]

		prob := st.detector.Probability(frameSamples)
		if chunk, ok := st.chunker.Feed(frameSamples, st.framePTS, prob); ok {
			p.emit(chunk)
		}
		st.framePTS += frameDurationNs
	}
}

func (p *Processor) flush() {
	if chunk, ok := p.mic.chunker.Stop(); ok {
		p.emit(chunk)
	}
	if chunk, ok := p.sys.chunker.Stop(); ok {
		p.emit(chunk)
	}
}
