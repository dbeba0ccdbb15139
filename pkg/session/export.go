package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audio"
	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

// rawSampleRate is the sample rate audio.raw is always recorded at, per
// spec.md section 6.
const rawSampleRate = 48000

// Export writes the derived artifacts spec.md section 6 names — audio.wav,
// transcript.md, notes.md — into destPath (or the session's own directory,
// if destPath is empty), alongside (never replacing) the canonical files.
// These are only ever produced on an explicit Export command.
func (s *Session) Export(destPath string, segments []transcript.TranscriptSegment, meeting notes.MeetingNotes) error {
	dir := exportDirForPath(s.dir, destPath)
	if dir != s.dir {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("session: creating export directory: %w", err)
		}
	}

	if err := s.exportAudioWAV(dir); err != nil {
		return fmt.Errorf("session: export audio.wav: %w", err)
	}
	if err := s.exportTranscriptMD(dir, segments); err != nil {
		return fmt.Errorf("session: export transcript.md: %w", err)
	}
	if err := s.exportNotesMD(dir, meeting); err != nil {
		return fmt.Errorf("session: export notes.md: %w", err)
	}
	return nil
}

func (s *Session) exportAudioWAV(dir string) error {
	raw, err := os.ReadFile(s.AudioRawPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing captured yet; not an error
		}
		return err
	}
	samples := audio.ReadFloat32LE(raw)
	wavData := audio.EncodeWAV(samples, rawSampleRate)
	return os.WriteFile(filepath.Join(dir, "audio.wav"), wavData, filePerm)
}

func (s *Session) exportTranscriptMD(dir string, segments []transcript.TranscriptSegment) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript — %s\n\n", s.id)
	for _, seg := range segments {
		fmt.Fprintf(&b, "**%s** [%s]: %s\n\n", seg.Speaker, formatMs(seg.StartMs), seg.Text)
	}
	return os.WriteFile(filepath.Join(dir, "transcript.md"), []byte(b.String()), filePerm)
}

func (s *Session) exportNotesMD(dir string, meeting notes.MeetingNotes) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Meeting Notes — %s\n\n", s.id)

	b.WriteString("## Key Points\n\n")
	for _, kp := range meeting.KeyPoints {
		fmt.Fprintf(&b, "- %s\n", kp.Text)
	}

	b.WriteString("\n## Decisions\n\n")
	for _, d := range meeting.Decisions {
		fmt.Fprintf(&b, "- %s\n", d.Text)
	}

	b.WriteString("\n## Action Items\n\n")
	for _, a := range meeting.Actions {
		owner := a.Owner
		if owner == "" {
			owner = "unassigned"
		}
		due := a.Due
		if due == "" {
			due = "no due date"
		}
		fmt.Fprintf(&b, "- %s (%s, %s)\n", a.Text, owner, due)
	}

	return os.WriteFile(filepath.Join(dir, "notes.md"), []byte(b.String()), filePerm)
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// exportDirForPath resolves the directory an Export(path) command should
// target: an explicit path overrides the session's own directory, matching
// the command's intent to place a copy elsewhere.
func exportDirForPath(sessionDir, requested string) string {
	if requested == "" {
		return sessionDir
	}
	return filepath.Clean(requested)
}
