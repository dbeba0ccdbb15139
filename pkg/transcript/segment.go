// Package transcript maintains the ledger: a time-ordered list of speech
// segments with a finite mutable tail, per spec.md section 4.5.
package transcript

import "github.com/meetloop-ai/meetloop-core/pkg/core"

// TranscriptSegment is one span of recognized speech. Segments within the
// mutable tail may have their Text and EndMs corrected by later overlapping
// transcriber output; once Finalized they are immutable.
type TranscriptSegment struct {
	ID        uint64
	StartMs   int64
	EndMs     int64
	Speaker   string
	Text      string
	Finalized bool
	Source    core.Source
}

// IncomingSegment is transcriber output after the pipeline has offset it to
// session-relative milliseconds, but before the ledger has assigned it an
// id or decided whether it merges with an existing segment.
type IncomingSegment struct {
	StartMs int64
	EndMs   int64
	Text    string
	Source  core.Source
}
