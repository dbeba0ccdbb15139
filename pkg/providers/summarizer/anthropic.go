package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/notes"
	"github.com/meetloop-ai/meetloop-core/pkg/transcript"
)

// AnthropicSummarizer calls Claude's Messages API, adapted from the
// teacher's anthropic.go LLM client. It does not stream; Summarize's
// returned channel carries a single EventPatchReady once the response
// arrives.
type AnthropicSummarizer struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewAnthropicSummarizer(apiKey, model string, connectTimeout time.Duration) *AnthropicSummarizer {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicSummarizer{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
		client: newHTTPClient(connectTimeout),
	}
}

func (a *AnthropicSummarizer) Name() string { return "anthropic-summarizer" }

func (a *AnthropicSummarizer) Summarize(ctx context.Context, segments []transcript.TranscriptSegment, current notes.MeetingNotes, existingIDs []string, meetingContext string) (<-chan notes.SummarizerEvent, error) {
	prompt := buildPrompt(segments, current, existingIDs, meetingContext)

	payload := map[string]interface{}{
		"model":      a.model,
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &providerError{kind: ErrTimeout, detail: err.Error()}
		}
		return nil, &providerError{kind: ErrNetwork, detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPStatus(resp.StatusCode, string(respBody))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &providerError{kind: ErrParseFailure, detail: err.Error()}
	}
	if len(result.Content) == 0 {
		return nil, &providerError{kind: ErrParseFailure, detail: "no content returned from anthropic"}
	}

	var dto patchDTO
	if err := json.Unmarshal([]byte(result.Content[0].Text), &dto); err != nil {
		return nil, &providerError{kind: ErrParseFailure, detail: err.Error()}
	}
	patch, err := dto.toPatch()
	if err != nil {
		return nil, err
	}

	ch := make(chan notes.SummarizerEvent, 1)
	ch <- notes.SummarizerEvent{Kind: notes.EventPatchReady, Patch: patch}
	close(ch)
	return ch, nil
}
