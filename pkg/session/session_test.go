package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/core"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

func TestOpenCreatesCanonicalFiles(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	id := NewID(start)

	s, err := Open(root, id, "groq-stt", "anthropic-summarizer", start, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.AppendSegment(transcript.TranscriptSegment{ID: 1, StartMs: 0, EndMs: 1000, Speaker: "Me", Text: "hello world", Finalized: true, Source: core.SourceMicrophone}); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	if err := s.WriteNotes(notes.MeetingNotes{KeyPoints: []notes.NoteItem{{ID: "kp1", Text: "said hello"}}}); err != nil {
		t.Fatalf("WriteNotes: %v", err)
	}
	if err := s.WriteContext("quarterly planning"); err != nil {
		t.Fatalf("WriteContext: %v", err)
	}
	if err := s.Close(start.Add(time.Minute)); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, name := range []string{metadataFile, transcriptFile, notesFile, contextFile} {
		info, err := os.Stat(filepath.Join(s.Dir(), name))
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if info.Mode().Perm() != filePerm {
			t.Errorf("%s: expected mode %o, got %o", name, filePerm, info.Mode().Perm())
		}
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), metadataFile))
	if err != nil {
		t.Fatal(err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if !meta.Finalized || meta.EndTime == nil {
		t.Error("expected metadata to be finalized with an end time after Close")
	}
	if meta.ID != id {
		t.Errorf("expected metadata id %s, got %s", id, meta.ID)
	}
}

func TestExportWritesDerivedFiles(t *testing.T) {
	root := t.TempDir()
	start := time.Now()
	id := NewID(start)

	s, err := Open(root, id, "groq-stt", "anthropic-summarizer", start, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	segments := []transcript.TranscriptSegment{{ID: 1, StartMs: 0, EndMs: 2000, Speaker: "Me", Text: "hello world", Finalized: true}}
	meeting := notes.MeetingNotes{
		KeyPoints: []notes.NoteItem{{ID: "kp1", Text: "discussed roadmap"}},
		Decisions: []notes.NoteItem{{ID: "d1", Text: "ship Friday"}},
		Actions:   []notes.ActionItem{{ID: "a1", Text: "send recap", Owner: "Alice"}},
	}

	if err := s.Export("", segments, meeting); err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, name := range []string{"transcript.md", "notes.md"} {
		if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	md, err := os.ReadFile(filepath.Join(s.Dir(), "notes.md"))
	if err != nil {
		t.Fatal(err)
	}
	if len(md) == 0 {
		t.Error("expected non-empty notes.md")
	}
}

func TestExportToExplicitPath(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	start := time.Now()
	id := NewID(start)

	s, err := Open(root, id, "groq-stt", "anthropic-summarizer", start, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Export(dest, nil, notes.MeetingNotes{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "transcript.md")); err != nil {
		t.Errorf("expected transcript.md in explicit export dir: %v", err)
	}
}
