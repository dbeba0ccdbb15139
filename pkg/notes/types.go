// Package notes implements the patch-based meeting notes state machine of
// spec.md section 4.6: a scheduled and keyword-triggered engine that asks a
// pluggable summarizer backend for an incremental patch and applies it
// atomically to the long-lived MeetingNotes state.
package notes

import "time"

// NoteItem is a key point or decision. Its ID is stable across
// summarization cycles; the backend is expected to reuse it for the same
// logical item so repeated Add operations collapse into no-ops.
type NoteItem struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Evidence []uint64 `json:"evidence"`
}

// ActionItem is a NoteItem with an optional owner and due date, mutable
// only through UpdateAction.
type ActionItem struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Owner    string   `json:"owner"`
	Due      string   `json:"due"`
	Evidence []uint64 `json:"evidence"`
}

// MeetingNotes is the long-lived notes state. Ordering within each sequence
// is insertion order and is never reordered by Update operations. Field
// tags match the canonical notes snapshot file layout of spec.md section 6.
type MeetingNotes struct {
	KeyPoints []NoteItem   `json:"key_points"`
	Decisions []NoteItem   `json:"decisions"`
	Actions   []ActionItem `json:"actions"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Clone returns a deep copy, used so patch application can be attempted
// against a scratch copy and only committed once every operation has been
// processed.
func (m MeetingNotes) Clone() MeetingNotes {
	out := MeetingNotes{
		KeyPoints: append([]NoteItem(nil), m.KeyPoints...),
		Decisions: append([]NoteItem(nil), m.Decisions...),
		Actions:   append([]ActionItem(nil), m.Actions...),
		UpdatedAt: m.UpdatedAt,
	}
	for i, kp := range m.KeyPoints {
		out.KeyPoints[i].Evidence = append([]uint64(nil), kp.Evidence...)
	}
	for i, d := range m.Decisions {
		out.Decisions[i].Evidence = append([]uint64(nil), d.Evidence...)
	}
	for i, a := range m.Actions {
		out.Actions[i].Evidence = append([]uint64(nil), a.Evidence...)
	}
	return out
}

// ExistingIDs collects every note and action id currently held, for the
// idempotency contract the summarizer prompt must honor.
func (m MeetingNotes) ExistingIDs() []string {
	ids := make([]string, 0, len(m.KeyPoints)+len(m.Decisions)+len(m.Actions))
	for _, kp := range m.KeyPoints {
		ids = append(ids, kp.ID)
	}
	for _, d := range m.Decisions {
		ids = append(ids, d.ID)
	}
	for _, a := range m.Actions {
		ids = append(ids, a.ID)
	}
	return ids
}
