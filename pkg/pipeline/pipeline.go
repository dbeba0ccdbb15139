// Package pipeline wires every stage named in spec.md section 2 into a
// single thread-per-stage runtime: capture ring handoff, audio processor,
// chunk queue, transcriber worker, transcript ledger, notes engine, and the
// event bus, plus the command surface the shell drives it with.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
	"github.com/meetloop-ai/meetloop-core/pkg/bus"
	"github.com/meetloop-ai/meetloop-core/pkg/capture"
	"github.com/meetloop-ai/meetloop-core/pkg/config"
	"github.com/meetloop-ai/meetloop-core/pkg/core"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/providers/stt"
	"github.com/meetloop-ai/meetloop-core/pkg/session"
	"github.com/meetloop-ai/meetloop-core/pkg/transcribe"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

const statsInterval = 2 * time.Second

// Registries bundles the named backend instances the pipeline can switch
// between at runtime via SwitchTranscriber/SwitchSummarizer commands. The
// active backend at construction is looked up from these by name.
type Registries struct {
	STT         map[string]stt.Provider
	Summarizers map[string]notes.Summarizer
}

// Pipeline owns every pipeline-stage goroutine and the session persisting
// their output. One Pipeline instance is one meeting recording.
type Pipeline struct {
	cfg        config.Config
	adapter    capture.Adapter
	processor  *audioproc.Processor
	chunkQueue *transcribe.ChunkQueue
	worker     *transcribe.Worker
	ledger     *transcript.Ledger
	notesEng   *notes.Engine
	writer     *capture.AudioWriter
	bus        *bus.EventBus
	sess       *session.Session
	logger     core.Logger

	registries Registries

	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup // processor, worker, notes engine, command loop, stats loop
	writerWg sync.WaitGroup // audio writer, stopped separately so it outlives the processor that feeds it

	chunksEmitted uint64
	started       bool
	mu            sync.Mutex
}

// New constructs a Pipeline. sttBackend and summarizerBackend are looked up
// from registries by the names config.Providers names; they must be present.
func New(cfg config.Config, adapter capture.Adapter, registries Registries, sessionRoot string, logger core.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	sttBackend, ok := registries.STT[cfg.Providers.STTBackend]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown stt backend %q", cfg.Providers.STTBackend)
	}
	summarizerBackend, ok := registries.Summarizers[cfg.Providers.SummarizerBackend]
	if !ok {
		return nil, fmt.Errorf("pipeline: unknown summarizer backend %q", cfg.Providers.SummarizerBackend)
	}

	sessionRootDir := sessionRoot
	if sessionRootDir == "" {
		sessionRootDir = cfg.SessionDir
	}
	id := session.NewID(time.Now())
	sess, err := session.Open(sessionRootDir, id, sttBackend.Name(), summarizerBackend.Name(), time.Now(), logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: opening session: %w", err)
	}

	eventBus := bus.NewEventBus()
	ledger := transcript.NewLedger(cfg.Ledger.OverlapWindowMs, cfg.Ledger.PruneThreshold)
	chunkQueue := transcribe.NewChunkQueue()

	writer, err := capture.NewAudioWriter(sess.AudioRawPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: opening audio writer: %w", err)
	}

	p := &Pipeline{
		cfg:        cfg,
		adapter:    adapter,
		chunkQueue: chunkQueue,
		ledger:     ledger,
		writer:     writer,
		bus:        eventBus,
		sess:       sess,
		logger:     logger,
		registries: registries,
	}

	p.notesEng = notes.NewEngine(ledger, summarizerBackend, cfg.Providers.ReadTimeout, logger, p.onNotesPatch)
	if len(cfg.Notes.TriggerPhrases) > 0 {
		p.notesEng.SetTriggerPhrases(cfg.Notes.TriggerPhrases)
	}
	if cfg.Notes.CycleInterval > 0 {
		p.notesEng.SetCycleInterval(cfg.Notes.CycleInterval)
	}

	p.worker = transcribe.NewWorker(chunkQueue, sttBackend, cfg.Providers.ReadTimeout, p.onTranscribeEvent, logger)

	p.processor = audioproc.NewProcessor(adapter, 48000, 1, nil, p.onChunkEmitted, p.onRawSamples, logger)

	return p, nil
}

// Start launches the pipeline's always-on control plane (the command loop
// and stats loop) and then begins capture, exactly as issuing a Start
// command would: CommandStart below calls the same startCapture method this
// does, so a shell may equivalently drive the whole lifecycle, including the
// initial start, through SendCommand alone, per spec.md section 4.7 modeling
// Start as one of the command surface's members rather than a side-channel
// constructor call. Start returns once the capture adapter has started;
// stages continue running until Stop is called or ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.runCtx = runCtx
	p.cancel = cancel

	p.wg.Add(2)
	go func() { defer p.wg.Done(); p.runCommands(runCtx) }()
	go func() { defer p.wg.Done(); p.runStats(runCtx) }()

	return p.startCapture()
}

// startCapture starts the capture adapter and the processor/worker/notes
// engine goroutines. It is idempotent: a second call, whether from a
// duplicate CommandStart or a retry after a prior failure, is a no-op once
// capture is already running.
func (p *Pipeline) startCapture() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if err := p.adapter.Start(); err != nil {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return fmt.Errorf("pipeline: starting capture: %w", err)
	}

	p.writerWg.Add(1)
	go func() { defer p.writerWg.Done(); p.writer.Run() }()

	p.wg.Add(3)
	go func() { defer p.wg.Done(); p.processor.Run(p.runCtx) }()
	go func() { defer p.wg.Done(); p.worker.Run(p.runCtx) }()
	go func() { defer p.wg.Done(); p.notesEng.Run(p.runCtx) }()

	p.logger.Info("pipeline started", "session", p.sess.ID())
	return nil
}

// Stop is the broadcast cancellation token of spec.md section 5: every
// thread is signaled and allowed to reach its natural yield point before
// the audio writer (fed by the processor) and the session are closed, so
// no stage writes past its own shutdown.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.adapter.Stop()
	p.wg.Wait()

	p.chunkQueue.Close()
	p.writer.Stop()
	p.writerWg.Wait()

	if err := p.sess.Close(time.Now()); err != nil {
		p.logger.Error("failed to finalize session", "error", err)
	}
	p.bus.Close()
	p.logger.Info("pipeline stopped")
}

// Events returns the outbound event stream the shell consumes.
func (p *Pipeline) Events() <-chan bus.CoreEvent { return p.bus.Events() }

// SendCommand publishes a command from the shell onto the inbound command
// channel, where runCommands picks it up.
func (p *Pipeline) SendCommand(cmd bus.CoreCommand) { p.bus.SendCommand(cmd) }

func (p *Pipeline) onChunkEmitted(chunk audioproc.AudioChunk) {
	p.mu.Lock()
	p.chunksEmitted++
	p.mu.Unlock()
	p.chunkQueue.Push(chunk)
}

func (p *Pipeline) onRawSamples(_ core.Source, samples []float32) {
	p.writer.Push(samples)
}

// onTranscribeEvent runs on the transcriber worker's own goroutine, which
// is what makes it safe for it to be the sole mutator of the ledger, per
// spec.md section 5's shared-resource policy.
func (p *Pipeline) onTranscribeEvent(ev transcribe.Event) {
	switch ev.Kind {
	case transcribe.EventSegments:
		p.ingestSegments(ev)
	case transcribe.EventProviderError:
		p.bus.Publish(bus.CoreEvent{Kind: bus.EventError, ErrorKind: ev.ErrorKind, Message: ev.Message})
	case transcribe.EventProviderStatus:
		p.bus.Publish(bus.CoreEvent{Kind: bus.EventProviderStatus, Which: bus.WhichTranscriber, Backend: ev.Backend, OK: ev.OK, LatencyMs: ev.LatencyMs})
	}
}

func (p *Pipeline) ingestSegments(ev transcribe.Event) {
	offsetMs := ev.Chunk.StartPTSNs / 1_000_000

	incoming := make([]transcript.IncomingSegment, len(ev.Segments))
	for i, seg := range ev.Segments {
		incoming[i] = transcript.IncomingSegment{
			StartMs: offsetMs + seg.StartMs,
			EndMs:   offsetMs + seg.EndMs,
			Text:    seg.Text,
			Source:  ev.Chunk.Source,
		}
	}

	for _, ledgerEv := range p.ledger.IngestBatch(incoming) {
		switch ledgerEv.Kind {
		case transcript.EventTranscriptUpdated:
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventTranscriptUpdated, ChangedIDs: ledgerEv.IDs})
		case transcript.EventSegmentFinalized:
			p.handleFinalized(ledgerEv.IDs)
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventSegmentFinalized, ChangedIDs: ledgerEv.IDs})
		case transcript.EventLedgerPruned:
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventLedgerPruned, FirstKeptID: ledgerEv.FirstKeptID})
		}
	}
}

// handleFinalized persists every newly-finalized segment to the session's
// append-only transcript file and offers its text to the notes engine's
// keyword trigger, completing the two consumers spec.md section 4.5 names
// for finalization.
func (p *Pipeline) handleFinalized(ids []uint64) {
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, seg := range p.ledger.Snapshot() {
		if !want[seg.ID] {
			continue
		}
		if err := p.sess.AppendSegment(seg); err != nil {
			p.logger.Error("failed to persist finalized segment", "id", seg.ID, "error", err)
		}
		p.notesEng.NotifyFinalized(seg.Text)
	}
}

func (p *Pipeline) onNotesPatch(applied notes.PatchApplied) {
	if err := p.sess.WriteNotes(applied.Notes); err != nil {
		p.logger.Error("failed to persist notes snapshot", "error", err)
	}
	p.bus.Publish(bus.CoreEvent{Kind: bus.EventNotesPatched, Patch: applied.Patch, Notes: applied.Notes})
}

func (p *Pipeline) runStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventStats, Stats: p.snapshotStats()})
		}
	}
}

func (p *Pipeline) snapshotStats() bus.CaptureStats {
	p.mu.Lock()
	chunksEmitted := p.chunksEmitted
	p.mu.Unlock()

	stats := bus.CaptureStats{
		FramesCaptured: map[string]uint64{},
		FramesDropped:  map[string]uint64{},
		ChunksEmitted:  chunksEmitted,
		ChunksDropped:  p.chunkQueue.Dropped(),
	}
	if mic, ok := p.adapter.(interface {
		FramesCaptured() uint64
		FramesDropped() uint64
	}); ok {
		stats.FramesCaptured["microphone"] = mic.FramesCaptured()
		stats.FramesDropped["microphone"] = mic.FramesDropped()
	}
	return stats
}

func (p *Pipeline) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-p.bus.Commands():
			if !ok {
				return
			}
			p.handleCommand(cmd)
		}
	}
}

func (p *Pipeline) handleCommand(cmd bus.CoreCommand) {
	switch cmd.Kind {
	case bus.CommandStart:
		if err := p.startCapture(); err != nil {
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventError, ErrorKind: "start_failed", Message: err.Error()})
		}
	case bus.CommandPauseCapture:
		p.processor.Pause()
	case bus.CommandResumeCapture:
		p.processor.Resume()
	case bus.CommandSwitchTranscriber:
		backend, ok := p.registries.STT[cmd.Backend]
		if !ok {
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventError, ErrorKind: "unknown_backend", Message: "unknown stt backend " + cmd.Backend})
			return
		}
		p.worker.SwitchBackend(backend, cmd.Deadline)
	case bus.CommandSwitchSummarizer:
		backend, ok := p.registries.Summarizers[cmd.Backend]
		if !ok {
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventError, ErrorKind: "unknown_backend", Message: "unknown summarizer backend " + cmd.Backend})
			return
		}
		// cmd.Deadline is not threaded through here: SetSummarizer swaps
		// under the same lock runCycle reads through, so there is no
		// in-flight-retry window analogous to the transcriber worker's for
		// a deadline to bound.
		p.notesEng.SetSummarizer(backend)
		p.bus.Publish(bus.CoreEvent{Kind: bus.EventProviderStatus, Which: bus.WhichSummarizer, Backend: backend.Name(), OK: true})
	case bus.CommandForceSummarize:
		p.notesEng.ForceSummarize()
	case bus.CommandSetContext:
		p.notesEng.SetContext(cmd.Context)
		if err := p.sess.WriteContext(cmd.Context); err != nil {
			p.logger.Error("failed to persist meeting context", "error", err)
		}
	case bus.CommandExport:
		if err := p.sess.Export(cmd.Path, p.ledger.Snapshot(), p.notesEng.Snapshot()); err != nil {
			p.bus.Publish(bus.CoreEvent{Kind: bus.EventError, ErrorKind: "export_failed", Message: err.Error()})
		}
	case bus.CommandStop:
		go p.Stop()
	}
}
