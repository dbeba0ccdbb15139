package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

func sampleSegments() []transcript.TranscriptSegment {
	return []transcript.TranscriptSegment{
		{ID: 1, StartMs: 0, EndMs: 1000, Speaker: "Me", Text: "decision: we ship on friday", Finalized: true},
	}
}

func TestAnthropicSummarizer_ParsesPatchFromResponse(t *testing.T) {
	patchJSON := `{"operations":[{"type":"add_decision","id":"d1","text":"ship on friday","evidence":[1]}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}{Content: []struct {
			Text string `json:"text"`
		}{{Text: patchJSON}}})
	}))
	defer server.Close()

	s := &AnthropicSummarizer{apiKey: "test-key", url: server.URL, model: "claude-3-5-sonnet-20240620", client: server.Client()}
	ch, err := s.Summarize(context.Background(), sampleSegments(), notes.MeetingNotes{}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := <-ch
	if ev.Kind != notes.EventPatchReady {
		t.Fatalf("expected a PatchReady event, got %v", ev.Kind)
	}
	if len(ev.Patch.Operations) != 1 || ev.Patch.Operations[0].ID != "d1" {
		t.Errorf("unexpected patch: %+v", ev.Patch)
	}
	if _, more := <-ch; more {
		t.Error("expected channel to close after the single PatchReady event")
	}
}

func TestAnthropicSummarizer_MalformedJSONIsParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}{Content: []struct {
			Text string `json:"text"`
		}{{Text: "not json"}}})
	}))
	defer server.Close()

	s := &AnthropicSummarizer{apiKey: "test-key", url: server.URL, model: "claude-3-5-sonnet-20240620", client: server.Client()}
	_, err := s.Summarize(context.Background(), sampleSegments(), notes.MeetingNotes{}, nil, "")
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	if !errors.Is(err, ErrParseFailure) {
		t.Errorf("expected ErrParseFailure, got %v", err)
	}
}
