package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

// StreamingSummarizer talks to a websocket-based summarization service,
// adapted from the teacher's lokutor.go streaming TTS client. Unlike the
// one-shot HTTP backends, it surfaces genuine EventDraftToken progress
// events as the model's response streams in, terminated by exactly one
// EventPatchReady.
type StreamingSummarizer struct {
	apiKey         string
	host           string
	scheme         string // "wss" in production; tests override to "ws"
	connectTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStreamingSummarizer(apiKey, host string, connectTimeout time.Duration) *StreamingSummarizer {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &StreamingSummarizer{apiKey: apiKey, host: host, scheme: "wss", connectTimeout: connectTimeout}
}

func (s *StreamingSummarizer) Name() string { return "streaming-summarizer" }

func (s *StreamingSummarizer) getConn(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	scheme := s.scheme
	if scheme == "" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: s.host, Path: "/summarize", RawQuery: "api_key=" + s.apiKey}

	connectTimeout := s.connectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to streaming summarizer: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Summarize sends the prompt over the websocket and spawns a goroutine
// that forwards TOKEN:/PATCH: frames onto the returned channel as events and
// closes the channel on an ERR: or EOS frame, matching the wire shape of the
// teacher's StreamSynthesize loop.
func (s *StreamingSummarizer) Summarize(ctx context.Context, segments []transcript.TranscriptSegment, current notes.MeetingNotes, existingIDs []string, meetingContext string) (<-chan notes.SummarizerEvent, error) {
	conn, err := s.getConn(ctx)
	if err != nil {
		return nil, &providerError{kind: ErrNetwork, detail: err.Error()}
	}

	req := map[string]interface{}{
		"prompt": buildPrompt(segments, current, existingIDs, meetingContext),
	}

	s.mu.Lock()
	writeErr := wsjson.Write(ctx, conn, req)
	s.mu.Unlock()
	if writeErr != nil {
		s.invalidate(conn)
		return nil, &providerError{kind: ErrNetwork, detail: writeErr.Error()}
	}

	out := make(chan notes.SummarizerEvent, 8)
	go s.readLoop(ctx, conn, out)
	return out, nil
}

func (s *StreamingSummarizer) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- notes.SummarizerEvent) {
	defer close(out)

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			s.invalidate(conn)
			return
		}
		if messageType != websocket.MessageText {
			continue
		}

		msg := string(payload)
		switch {
		case strings.HasPrefix(msg, "TOKEN:"):
			out <- notes.SummarizerEvent{Kind: notes.EventDraftToken, Token: strings.TrimPrefix(msg, "TOKEN:")}
		case strings.HasPrefix(msg, "PATCH:"):
			var dto patchDTO
			if err := json.Unmarshal([]byte(strings.TrimPrefix(msg, "PATCH:")), &dto); err != nil {
				return
			}
			patch, err := dto.toPatch()
			if err != nil {
				return
			}
			out <- notes.SummarizerEvent{Kind: notes.EventPatchReady, Patch: patch}
		case msg == "EOS":
			return
		case strings.HasPrefix(msg, "ERR:"):
			return
		}
	}
}

func (s *StreamingSummarizer) invalidate(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		conn.Close(websocket.StatusAbnormalClosure, "read failed")
		s.conn = nil
	}
}

// Close releases the underlying websocket connection, if any.
func (s *StreamingSummarizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close(websocket.StatusNormalClosure, "")
		s.conn = nil
		return err
	}
	return nil
}
