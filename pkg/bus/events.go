// Package bus implements the event/command surface of spec.md section 4.7:
// the merged outbound CoreEvent stream consumed by the shell, and the
// inbound CoreCommand channel the shell uses to drive the pipeline.
package bus

import (
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
)

// EventKind discriminates the CoreEvent union.
type EventKind int

const (
	EventTranscriptUpdated EventKind = iota
	EventSegmentFinalized
	EventNotesPatched
	EventProviderStatus
	EventStats
	EventError
	EventLedgerPruned
)

// Which identifies whether a ProviderStatus event concerns the transcriber
// or summarizer backend.
type Which int

const (
	WhichTranscriber Which = iota
	WhichSummarizer
)

// CaptureStats mirrors the shell-owned counters of spec.md section 3,
// snapshotted onto the bus periodically by the pipeline. The snapshot fills
// the frame and chunk counters only; LastTranscribeLatencyMs,
// ActiveTranscriber and ActiveSummarizer are left at their zero values.
type CaptureStats struct {
	FramesCaptured          map[string]uint64
	FramesDropped           map[string]uint64
	ChunksEmitted           uint64
	ChunksDropped           uint64
	LastTranscribeLatencyMs float64
	ActiveTranscriber       string
	ActiveSummarizer        string
}

// CoreEvent is the single outbound union type the shell (or any other
// subscriber) consumes. Only the fields relevant to Kind are populated.
type CoreEvent struct {
	Kind EventKind

	ChangedIDs []uint64 // TranscriptUpdated, SegmentFinalized
	Patch      notes.NotesPatch
	Notes      notes.MeetingNotes

	Which      Which
	Backend    string
	OK         bool
	LatencyMs  float64

	Stats CaptureStats

	ErrorKind string
	Message   string

	FirstKeptID uint64
}

// CommandKind discriminates the CoreCommand union.
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandStop
	CommandPauseCapture
	CommandResumeCapture
	CommandSwitchTranscriber
	CommandSwitchSummarizer
	CommandForceSummarize
	CommandSetContext
	CommandExport
)

// CoreCommand is the single inbound union type the shell issues.
type CoreCommand struct {
	Kind CommandKind

	Backend  string    // SwitchTranscriber, SwitchSummarizer
	Deadline time.Time // SwitchTranscriber: optional grace window, see transcribe.Command
	Context  string    // SetContext
	Path     string    // Export
}
