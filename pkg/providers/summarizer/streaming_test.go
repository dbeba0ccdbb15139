package summarizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
)

func TestStreamingSummarizer_EmitsDraftTokensThenPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}

		conn.Write(r.Context(), websocket.MessageText, []byte("TOKEN:analyzing "))
		conn.Write(r.Context(), websocket.MessageText, []byte("TOKEN:transcript"))
		conn.Write(r.Context(), websocket.MessageText, []byte(`PATCH:{"operations":[{"type":"add_key_point","id":"k1","text":"noted","evidence":[1]}]}`))
		conn.Write(r.Context(), websocket.MessageText, []byte("EOS"))
	}))
	defer server.Close()

	s := &StreamingSummarizer{
		apiKey: "test-key",
		host:   strings.TrimPrefix(server.URL, "http://"),
		scheme: "ws",
	}

	ch, err := s.Summarize(context.Background(), sampleSegments(), notes.MeetingNotes{}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var tokens []string
	var patch *notes.NotesPatch
	for ev := range ch {
		switch ev.Kind {
		case notes.EventDraftToken:
			tokens = append(tokens, ev.Token)
		case notes.EventPatchReady:
			p := ev.Patch
			patch = &p
		}
	}

	if len(tokens) != 2 {
		t.Fatalf("expected two draft tokens, got %v", tokens)
	}
	if patch == nil || len(patch.Operations) != 1 {
		t.Fatalf("expected exactly one patch with one operation, got %+v", patch)
	}

	if s.Name() != "streaming-summarizer" {
		t.Errorf("expected streaming-summarizer, got %s", s.Name())
	}
	s.Close()
}

func TestStreamingSummarizer_ErrFrameClosesChannelWithoutPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		conn.Write(r.Context(), websocket.MessageText, []byte("ERR:backend overloaded"))
	}))
	defer server.Close()

	s := &StreamingSummarizer{
		apiKey: "test-key",
		host:   strings.TrimPrefix(server.URL, "http://"),
		scheme: "ws",
	}

	ch, err := s.Summarize(context.Background(), sampleSegments(), notes.MeetingNotes{}, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range ch {
		t.Fatal("did not expect any events after an ERR frame")
	}
}
