package summarizer

import (
	"fmt"
	"strings"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

// schemaInstructions is appended to every prompt so a non-streaming
// backend's single text response can be parsed directly as a patchDTO.
const schemaInstructions = `Respond with a single JSON object of the shape:
{"operations": [
  {"type": "add_key_point", "id": "...", "text": "...", "evidence": [1,2]},
  {"type": "add_decision", "id": "...", "text": "...", "evidence": [1,2]},
  {"type": "add_action", "id": "...", "text": "...", "owner": "...", "due": "...", "evidence": [1,2]},
  {"type": "update_action", "id": "...", "owner": "...", "due": "..."}
]}
Reuse an existing id exactly when the item is the same logical point as before. Emit no other text.`

// buildPrompt renders the shared prompt body every summarizer backend
// sends: optional meeting context, the current notes state with ids (so
// the backend can satisfy the idempotency contract), and the newly
// finalized transcript segments.
func buildPrompt(segments []transcript.TranscriptSegment, current notes.MeetingNotes, existingIDs []string, meetingContext string) string {
	var b strings.Builder

	if meetingContext != "" {
		fmt.Fprintf(&b, "Meeting context:\n%s\n\n", meetingContext)
	}

	fmt.Fprintf(&b, "Existing note ids: %s\n\n", strings.Join(existingIDs, ", "))

	b.WriteString("Current notes:\n")
	for _, kp := range current.KeyPoints {
		fmt.Fprintf(&b, "- key_point[%s]: %s\n", kp.ID, kp.Text)
	}
	for _, d := range current.Decisions {
		fmt.Fprintf(&b, "- decision[%s]: %s\n", d.ID, d.Text)
	}
	for _, a := range current.Actions {
		fmt.Fprintf(&b, "- action[%s]: %s (owner=%s due=%s)\n", a.ID, a.Text, a.Owner, a.Due)
	}
	b.WriteString("\nNew transcript since the last cycle:\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%d] %s: %s\n", seg.ID, seg.Speaker, seg.Text)
	}

	b.WriteString("\n")
	b.WriteString(schemaInstructions)
	return b.String()
}

type opDTO struct {
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Owner    *string  `json:"owner,omitempty"`
	Due      *string  `json:"due,omitempty"`
	Evidence []uint64 `json:"evidence,omitempty"`
}

type patchDTO struct {
	Operations []opDTO `json:"operations"`
}

// toPatch converts the wire DTO into a notes.NotesPatch, rejecting any
// operation whose type does not match the schema.
func (p patchDTO) toPatch() (notes.NotesPatch, error) {
	patch := notes.NotesPatch{Operations: make([]notes.Operation, 0, len(p.Operations))}
	for _, op := range p.Operations {
		var kind notes.OperationKind
		switch op.Type {
		case "add_key_point":
			kind = notes.OpAddKeyPoint
		case "add_decision":
			kind = notes.OpAddDecision
		case "add_action":
			kind = notes.OpAddAction
		case "update_action":
			kind = notes.OpUpdateAction
		default:
			return notes.NotesPatch{}, &providerError{kind: ErrSchemaViolation, detail: "unknown operation type " + op.Type}
		}
		patch.Operations = append(patch.Operations, notes.Operation{
			Kind:     kind,
			ID:       op.ID,
			Text:     op.Text,
			Owner:    op.Owner,
			Due:      op.Due,
			Evidence: op.Evidence,
		})
	}
	return patch, nil
}
