package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
	"github.com/meetloop-ai/meetloop-core/pkg/bus"
	"github.com/meetloop-ai/meetloop-core/pkg/capture"
	"github.com/meetloop-ai/meetloop-core/pkg/config"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/providers/stt"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

// fakeAdapter hands a single pre-built microphone frame to the processor on
// its first drain and reports no data thereafter, which is enough to drive
// a whole chunk through the chunker state machine in one Processor.tick.
type fakeAdapter struct {
	mu      sync.Mutex
	pending *capture.AudioFrame
	started bool
}

func (a *fakeAdapter) Start() error {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	return nil
}
func (a *fakeAdapter) Stop() {}
func (a *fakeAdapter) TryRecvSystem() (capture.AudioFrame, bool) { return capture.AudioFrame{}, false }
func (a *fakeAdapter) TryRecvMic() (capture.AudioFrame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return capture.AudioFrame{}, false
	}
	frame := *a.pending
	a.pending = nil
	return frame, true
}
func (a *fakeAdapter) FramesCaptured() uint64 { return 1 }
func (a *fakeAdapter) FramesDropped() uint64  { return 0 }

// toneSilence appends speechMs of a loud tone followed by silenceMs of
// silence, at 48kHz mono, onto samples.
func toneSilence(samples []float32, speechMs, silenceMs int) []float32 {
	const deviceRate = 48000
	speechN := speechMs * deviceRate / 1000
	silenceN := silenceMs * deviceRate / 1000
	start := len(samples)
	samples = append(samples, make([]float32, speechN+silenceN)...)
	for i := 0; i < speechN; i++ {
		samples[start+i] = float32(0.6 * math.Sin(float64(i)*0.1))
	}
	return samples
}

// meetingFrame synthesizes two separate speech-then-silence utterances back
// to back, long enough for the real Chunker state machine to open, hangover
// -close, and emit two distinct chunks from a single capture frame.
func meetingFrame() capture.AudioFrame {
	var samples []float32
	samples = toneSilence(samples, 2500, 800)
	samples = toneSilence(samples, 2500, 800)
	return capture.AudioFrame{PTSNanos: 0, SampleRate: 48000, Channels: 1, Samples: samples}
}

// fakeSTT returns one segment per chunk whose text opens with the chunk's
// start time, so consecutive overlapping chunks are not similar enough for
// the ledger to merge them into a single segment.
type fakeSTT struct {
	name string
}

func (f *fakeSTT) Name() string { return f.name }
func (f *fakeSTT) Transcribe(ctx context.Context, chunk audioproc.AudioChunk) ([]stt.Segment, error) {
	text := fmt.Sprintf("at %dms we decided to ship it", chunk.StartPTSNs/1_000_000)
	return []stt.Segment{{StartMs: 0, EndMs: chunk.DurationMs(), Text: text}}, nil
}

// recordingSummarizer always proposes a single decision patch citing every
// segment it was offered, so a full pipeline run exercises notes application
// and session persistence without depending on a real language model.
type recordingSummarizer struct {
	name string

	mu    sync.Mutex
	calls int
}

func (f *recordingSummarizer) Name() string { return f.name }

func (f *recordingSummarizer) Summarize(ctx context.Context, segments []transcript.TranscriptSegment, current notes.MeetingNotes, existingIDs []string, meetingContext string) (<-chan notes.SummarizerEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	var evidence []uint64
	for _, seg := range segments {
		evidence = append(evidence, seg.ID)
	}

	ch := make(chan notes.SummarizerEvent, 1)
	ch <- notes.SummarizerEvent{Kind: notes.EventPatchReady, Patch: notes.NotesPatch{Operations: []notes.Operation{
		{Kind: notes.OpAddDecision, ID: "d1", Text: "ship it", Evidence: evidence},
	}}}
	close(ch)
	return ch, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeAdapter) {
	t.Helper()
	adapter := &fakeAdapter{pending: &frame}

	cfg := config.Config{
		Ledger:    config.LedgerConfig{OverlapWindowMs: 500, PruneThreshold: 2000},
		Notes:     config.NotesConfig{CycleInterval: 20 * time.Millisecond, TriggerPhrases: []string{"decided"}},
		Providers: config.ProvidersConfig{STTBackend: "fake-stt", SummarizerBackend: "fake-summarizer"},
	}

	registries := Registries{
		STT:         map[string]stt.Provider{"fake-stt": &fakeSTT{name: "fake-stt"}},
		Summarizers: map[string]notes.Summarizer{"fake-summarizer": &recordingSummarizer{name: "fake-summarizer"}},
	}

	p, err := New(cfg, adapter, registries, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, adapter
}

var frame = meetingFrame()

func TestPipelineEndToEnd(t *testing.T) {
	p, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var gotFinalized, gotNotesPatched, gotStats bool
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev := <-p.Events():
			switch ev.Kind {
			case bus.EventSegmentFinalized:
				gotFinalized = true
			case bus.EventNotesPatched:
				gotNotesPatched = true
			case bus.EventStats:
				gotStats = true
			}
			if gotFinalized && gotNotesPatched && gotStats {
				break loop
			}
		case <-deadline:
			break loop
		}
	}

	p.Stop()

	if !gotStats {
		t.Error("expected at least one stats event")
	}
	if !gotFinalized {
		t.Error("expected the synthesized speech chunk to finalize a transcript segment")
	}
	if !gotNotesPatched {
		t.Error("expected the notes engine to apply a patch over the finalized segment")
	}
}

// TestPipeline_CommandStartDrivesCapture confirms a shell can drive the
// initial capture start through the command surface alone, per spec.md
// section 4.7 modeling Start as a command rather than only a direct method
// call: sending CommandStart (with no prior call to p.Start's capture path)
// still brings up the adapter and begins emitting transcript/notes events.
func TestPipeline_CommandStartDrivesCapture(t *testing.T) {
	p, adapter := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Launch only the control plane (command + stats loop), mirroring what
	// Start does before it calls startCapture, without starting capture
	// itself — the command surface must be able to do that on its own.
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	p.runCtx = runCtx
	p.cancel = runCancel
	p.wg.Add(2)
	go func() { defer p.wg.Done(); p.runCommands(runCtx) }()
	go func() { defer p.wg.Done(); p.runStats(runCtx) }()

	adapter.mu.Lock()
	startedBefore := adapter.started
	adapter.mu.Unlock()
	if startedBefore {
		t.Fatal("adapter should not be started before CommandStart is sent")
	}

	p.SendCommand(bus.CoreCommand{Kind: bus.CommandStart})

	var gotFinalized bool
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == bus.EventSegmentFinalized {
				gotFinalized = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}

	p.Stop()

	adapter.mu.Lock()
	startedAfter := adapter.started
	adapter.mu.Unlock()
	if !startedAfter {
		t.Error("expected CommandStart to start the capture adapter")
	}
	if !gotFinalized {
		t.Error("expected CommandStart-driven capture to still finalize a transcript segment")
	}
}
