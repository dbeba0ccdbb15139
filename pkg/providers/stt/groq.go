package stt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"encoding/json"

	"github.com/meetloop-ai/meetloop-core/pkg/audio"
	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
)

// GroqSTT calls Groq's OpenAI-compatible Whisper transcription endpoint,
// adapted from the teacher's groq.go client.
type GroqSTT struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewGroqSTT(apiKey, model string, connectTimeout time.Duration) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
		client: NewHTTPClient(connectTimeout),
	}
}

func (s *GroqSTT) Name() string { return "groq-stt" }

func (s *GroqSTT) Transcribe(ctx context.Context, chunk audioproc.AudioChunk) ([]Segment, error) {
	wavData := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", s.model); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
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
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &providerError{kind: ErrDecode, detail: err.Error()}
	}
	if result.Text == "" {
		return nil, nil
	}

	return []Segment{{StartMs: 0, EndMs: chunk.DurationMs(), Text: result.Text}}, nil
}
