package notes

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/core"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

const (
	cycleInterval      = 10 * time.Second
	defaultReadTimeout = 60 * time.Second
)

var defaultTriggerPhrases = []string{
	"decided", "decision", "action item", "will", "owes",
}

// SummarizerEventKind distinguishes the two events a Summarizer stream can
// produce.
type SummarizerEventKind int

const (
	EventDraftToken SummarizerEventKind = iota
	EventPatchReady
)

// SummarizerEvent is one item of a Summarizer's streaming response: zero or
// more draft tokens followed by exactly one PatchReady.
type SummarizerEvent struct {
	Kind  SummarizerEventKind
	Token string
	Patch NotesPatch
}

// Summarizer is the pluggable language-model backend capability of
// spec.md section 6. Implementations stream SummarizerEvents over the
// returned channel and must close it after sending exactly one
// EventPatchReady (or none, on error).
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, segments []transcript.TranscriptSegment, current MeetingNotes, existingIDs []string, meetingContext string) (<-chan SummarizerEvent, error)
}

// LedgerView is the read-only slice of *transcript.Ledger the notes engine
// needs: a snapshot of segments and a way to validate evidence ids. The
// ledger itself implements this.
type LedgerView interface {
	Snapshot() []transcript.TranscriptSegment
	IsFinalized(id uint64) bool
}

// PatchApplied is emitted after every successfully applied patch, carrying
// enough detail for the event bus to forward a NotesPatched event.
type PatchApplied struct {
	Patch NotesPatch
	Notes MeetingNotes
}

// Engine is the notes-engine thread of spec.md section 4.6: it fires on a
// 10s schedule and on keyword triggers, asks the active Summarizer for a
// patch over newly finalized segments, and applies it atomically.
type Engine struct {
	mu    sync.Mutex
	notes MeetingNotes
	// cursor is the highest finalized segment id already included in a
	// prior cycle; only segments past it are offered to the backend.
	cursor uint64

	ledger         LedgerView
	summarizer     Summarizer
	triggerPhrases []string
	meetingContext string
	cycleInterval  time.Duration
	readTimeout    time.Duration

	logger  core.Logger
	onPatch func(PatchApplied)

	// trigger is capacity 1: concurrent trigger requests while a cycle is
	// in flight coalesce into a single pending wakeup, implementing the
	// skip-if-busy queue without a separate busy flag, since Run's select
	// loop is the engine's only thread and never executes two cycles
	// concurrently.
	trigger chan struct{}
}

// NewEngine constructs an Engine. readTimeout bounds every Summarize call
// issued by runCycle, per spec.md section 5's read <= 60s suspension-point
// contract; zero falls back to the 60s default. onPatch, if non-nil, is
// called after every successfully applied patch.
func NewEngine(ledger LedgerView, summarizer Summarizer, readTimeout time.Duration, logger core.Logger, onPatch func(PatchApplied)) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Engine{
		ledger:         ledger,
		summarizer:     summarizer,
		triggerPhrases: append([]string(nil), defaultTriggerPhrases...),
		readTimeout:    readTimeout,
		logger:         logger,
		onPatch:        onPatch,
		trigger:        make(chan struct{}, 1),
	}
}

// SetContext installs verbatim meeting-context text injected ahead of the
// transcript in every future summarizer prompt. An empty string omits the
// section entirely.
func (e *Engine) SetContext(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meetingContext = text
}

// SetSummarizer swaps the active summarizer backend, per spec.md section
// 4.7's SwitchSummarizer command. Because Run's select loop is the engine's
// only goroutine and runCycle reads e.summarizer under the same lock, a
// swap never races with a cycle already in flight reading the old handle.
func (e *Engine) SetSummarizer(s Summarizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summarizer = s
}

// SetCycleInterval overrides the scheduler's fixed-cadence tick, per
// config.NotesConfig.CycleInterval. Zero leaves the 10s default in place;
// must be called before Run starts its ticker.
func (e *Engine) SetCycleInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycleInterval = d
}

// SetTriggerPhrases overrides the default keyword-trigger phrase list.
func (e *Engine) SetTriggerPhrases(phrases []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggerPhrases = append([]string(nil), phrases...)
}

// NotifyFinalized should be called with each newly finalized segment's
// text; it fires the keyword trigger if any configured phrase appears.
func (e *Engine) NotifyFinalized(text string) {
	e.mu.Lock()
	phrases := e.triggerPhrases
	e.mu.Unlock()

	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			e.ForceSummarize()
			return
		}
	}
}

// ForceSummarize requests an out-of-band cycle, coalescing with any already
// pending request.
func (e *Engine) ForceSummarize() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Snapshot returns a defensive copy of the current notes state.
func (e *Engine) Snapshot() MeetingNotes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notes.Clone()
}

// Run drives the scheduler until ctx is cancelled. It is the engine's only
// goroutine: timer ticks and triggers are handled strictly serially, which
// is what makes the capacity-1 trigger channel sufficient to implement
// skip-if-busy.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	interval := e.cycleInterval
	e.mu.Unlock()
	if interval <= 0 {
		interval = cycleInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		case <-e.trigger:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	segments := e.pendingSegments()
	if len(segments) == 0 {
		return
	}

	e.mu.Lock()
	current := e.notes.Clone()
	existingIDs := current.ExistingIDs()
	meetingContext := e.meetingContext
	summarizer := e.summarizer
	readTimeout := e.readTimeout
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	events, err := summarizer.Summarize(callCtx, segments, current, existingIDs, meetingContext)
	if err != nil {
		e.logger.Warn("summarize cycle failed", "backend", summarizer.Name(), "error", err)
		return
	}

	var patch NotesPatch
	var gotPatch bool
	for ev := range events {
		switch ev.Kind {
		case EventDraftToken:
			e.logger.Debug("summarizer draft token", "token", ev.Token)
		case EventPatchReady:
			patch = ev.Patch
			gotPatch = true
		}
	}
	if !gotPatch {
		e.logger.Warn("summarize cycle produced no patch", "backend", summarizer.Name())
		return
	}

	newNotes, applied := e.applyPatch(patch)
	if !applied {
		return
	}

	var maxID uint64
	for _, seg := range segments {
		if seg.ID > maxID {
			maxID = seg.ID
		}
	}

	e.mu.Lock()
	e.notes = newNotes
	e.cursor = maxID
	e.mu.Unlock()

	if e.onPatch != nil {
		e.onPatch(PatchApplied{Patch: patch, Notes: newNotes})
	}
}

// pendingSegments selects finalized segments past the cursor, per
// spec.md section 4.6 step 2.
func (e *Engine) pendingSegments() []transcript.TranscriptSegment {
	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	all := e.ledger.Snapshot()
	var pending []transcript.TranscriptSegment
	for _, seg := range all {
		if seg.Finalized && seg.ID > cursor {
			pending = append(pending, seg)
		}
	}
	return pending
}

// applyPatch applies every operation of patch to a scratch copy of the
// current notes and returns it only if the whole patch processed without
// error; on any unexpected failure it returns the zero value and false,
// leaving the live state (owned by the caller, untouched here) intact.
func (e *Engine) applyPatch(patch NotesPatch) (MeetingNotes, bool) {
	e.mu.Lock()
	scratch := e.notes.Clone()
	e.mu.Unlock()

	for _, op := range patch.Operations {
		op.Evidence = e.stripUnknownEvidence(op.Evidence)
		switch op.Kind {
		case OpAddKeyPoint:
			scratch.KeyPoints = addNoteItem(scratch.KeyPoints, op)
		case OpAddDecision:
			scratch.Decisions = addNoteItem(scratch.Decisions, op)
		case OpAddAction:
			scratch.Actions = addActionItem(scratch.Actions, op)
		case OpUpdateAction:
			if !updateAction(scratch.Actions, op) {
				e.logger.Warn("UpdateAction referenced unknown action id", "id", op.ID)
			}
		default:
			e.logger.Error("unknown patch operation kind", "kind", op.Kind)
			return MeetingNotes{}, false
		}
	}
	scratch.UpdatedAt = e.now()
	return scratch, true
}

// now returns wall-clock time; it is the single place the engine reads the
// clock.
func (e *Engine) now() time.Time { return time.Now() }

func (e *Engine) stripUnknownEvidence(ids []uint64) []uint64 {
	var kept []uint64
	for _, id := range ids {
		if e.ledger.IsFinalized(id) {
			kept = append(kept, id)
		}
	}
	return kept
}

func addNoteItem(items []NoteItem, op Operation) []NoteItem {
	for _, it := range items {
		if it.ID == op.ID {
			return items // duplicate Add is a no-op
		}
	}
	return append(items, NoteItem{ID: op.ID, Text: op.Text, Evidence: op.Evidence})
}

func addActionItem(items []ActionItem, op Operation) []ActionItem {
	for _, it := range items {
		if it.ID == op.ID {
			return items
		}
	}
	a := ActionItem{ID: op.ID, Text: op.Text, Evidence: op.Evidence}
	if op.Owner != nil {
		a.Owner = *op.Owner
	}
	if op.Due != nil {
		a.Due = *op.Due
	}
	return append(items, a)
}

func updateAction(items []ActionItem, op Operation) bool {
	for i := range items {
		if items[i].ID != op.ID {
			continue
		}
		if op.Owner != nil {
			items[i].Owner = *op.Owner
		}
		if op.Due != nil {
			items[i].Due = *op.Due
		}
		return true
	}
	return false
}
