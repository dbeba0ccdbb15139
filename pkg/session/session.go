// Package session implements the persisted session layout of spec.md
// section 6: one directory per session, keyed by a time-ordered unique id,
// holding the canonical metadata/transcript/notes/context/audio.raw files.
// Derived exports live in export.go.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meetloop-ai/meetloop-core/pkg/core"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600

	metadataFile   = "metadata"
	transcriptFile = "transcript"
	notesFile      = "notes"
	contextFile    = "context"
	audioRawFile   = "audio.raw"
)

// Metadata is the single-record canonical file spec.md section 6 names
// first: session id, start/end time, finalized flag, and the backend names
// active when the session was recorded.
type Metadata struct {
	ID                string     `json:"id"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Finalized         bool       `json:"finalized"`
	STTBackend        string     `json:"stt_backend"`
	SummarizerBackend string     `json:"summarizer_backend"`
}

// NewID mints a time-ordered unique session id: an RFC3339-ish UTC
// timestamp prefix (so directory listings sort chronologically) plus a
// google/uuid suffix for uniqueness within the same second.
func NewID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405Z"), uuid.NewString())
}

// transcriptRecord is one line of the append-only transcript file, matching
// spec.md section 6's field list exactly.
type transcriptRecord struct {
	ID        uint64 `json:"id"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Finalized bool   `json:"finalized"`
	Source    string `json:"source"`
}

// Session owns one session directory's canonical files for the lifetime of
// a recording. It is not safe for concurrent use by more than one writer
// per file; the pipeline serializes writes through its own single-writer
// stages.
type Session struct {
	dir    string
	id     string
	logger core.Logger

	transcript *os.File
}

// Open creates (or reopens) the session directory under root and its
// metadata/transcript files, warning if any existing canonical file has
// permissions looser than owner-only read/write.
func Open(root, id, sttBackend, summarizerBackend string, startTime time.Time, logger core.Logger) (*Session, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("session: creating directory: %w", err)
	}

	s := &Session{dir: dir, id: id, logger: logger}

	meta := Metadata{ID: id, StartTime: startTime, STTBackend: sttBackend, SummarizerBackend: summarizerBackend}
	if err := s.writeMetadata(meta); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(s.path(transcriptFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("session: opening transcript file: %w", err)
	}
	s.transcript = f

	s.warnLoosePermissions()
	return s, nil
}

func (s *Session) path(name string) string { return filepath.Join(s.dir, name) }

// Dir returns the session's directory path.
func (s *Session) Dir() string { return s.dir }

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// AudioRawPath returns the canonical path for the raw interleaved float32
// little-endian 48kHz mono capture, the file capture.AudioWriter appends to.
func (s *Session) AudioRawPath() string { return s.path(audioRawFile) }

func (s *Session) writeMetadata(meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(metadataFile), data, filePerm)
}

// AppendSegment appends one transcript record as a single JSON line, per
// spec.md section 6's append-only transcript format. It should be called
// once a segment is finalized, though the canonical file records whatever
// state the caller hands it.
func (s *Session) AppendSegment(seg transcript.TranscriptSegment) error {
	rec := transcriptRecord{
		ID: seg.ID, StartMs: seg.StartMs, EndMs: seg.EndMs,
		Speaker: seg.Speaker, Text: seg.Text, Finalized: seg.Finalized,
		Source: string(seg.Source),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = s.transcript.Write(line)
	return err
}

// WriteNotes overwrites the notes snapshot file with the current
// MeetingNotes state.
func (s *Session) WriteNotes(m notes.MeetingNotes) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(notesFile), data, filePerm)
}

// WriteContext overwrites the context file with verbatim meeting-context
// text.
func (s *Session) WriteContext(text string) error {
	return os.WriteFile(s.path(contextFile), []byte(text), filePerm)
}

// Close finalizes the session's metadata (stamping EndTime and Finalized)
// and closes the transcript file. It should be called once, when the
// pipeline stops.
func (s *Session) Close(endTime time.Time) error {
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	meta.EndTime = &endTime
	meta.Finalized = true
	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	return s.transcript.Close()
}

func (s *Session) readMetadata() (Metadata, error) {
	data, err := os.ReadFile(s.path(metadataFile))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// warnLoosePermissions logs a warning for any canonical file whose mode
// grants access beyond owner read/write, per spec.md section 6.
func (s *Session) warnLoosePermissions() {
	for _, name := range []string{metadataFile, transcriptFile, notesFile, contextFile, audioRawFile} {
		info, err := os.Stat(s.path(name))
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o077 != 0 {
			s.logger.Warn("session file has looser than owner-only permissions", "file", name, "mode", info.Mode().Perm().String())
		}
	}
}
