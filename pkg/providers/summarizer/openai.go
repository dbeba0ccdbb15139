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

// OpenAISummarizer calls the Chat Completions API, adapted from the
// teacher's openai.go LLM client.
type OpenAISummarizer struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewOpenAISummarizer(apiKey, model string, connectTimeout time.Duration) *OpenAISummarizer {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAISummarizer{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
		client: newHTTPClient(connectTimeout),
	}
}

func (o *OpenAISummarizer) Name() string { return "openai-summarizer" }

func (o *OpenAISummarizer) Summarize(ctx context.Context, segments []transcript.TranscriptSegment, current notes.MeetingNotes, existingIDs []string, meetingContext string) (<-chan notes.SummarizerEvent, error) {
	prompt := buildPrompt(segments, current, existingIDs, meetingContext)

	payload := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &providerError{kind: ErrParseFailure, detail: err.Error()}
	}
	if len(result.Choices) == 0 {
		return nil, &providerError{kind: ErrParseFailure, detail: "no choices returned from openai"}
	}

	var dto patchDTO
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &dto); err != nil {
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
