package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audio"
	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
)

// AssemblyAISTT uses AssemblyAI's upload-then-poll transcription flow,
// adapted from the teacher's assemblyai.go client. Its higher latency
// makes it a poor fit for the default backend but a reasonable fallback
// when a session tolerates slower turnaround.
type AssemblyAISTT struct {
	apiKey   string
	baseURL  string
	pollWait time.Duration
	client   *http.Client
}

func NewAssemblyAISTT(apiKey string, connectTimeout time.Duration) *AssemblyAISTT {
	return &AssemblyAISTT{
		apiKey:   apiKey,
		baseURL:  "https://api.assemblyai.com/v2",
		pollWait: 500 * time.Millisecond,
		client:   NewHTTPClient(connectTimeout),
	}
}

func (s *AssemblyAISTT) Name() string { return "assemblyai-stt" }

func (s *AssemblyAISTT) Transcribe(ctx context.Context, chunk audioproc.AudioChunk) ([]Segment, error) {
	wavData := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)

	uploadURL, err := s.upload(ctx, wavData)
	if err != nil {
		return nil, err
	}
	transcriptID, err := s.submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, &providerError{kind: ErrTimeout, detail: ctx.Err().Error()}
		case <-time.After(s.pollWait):
			text, status, err := s.getTranscript(ctx, transcriptID)
			if err != nil {
				return nil, err
			}
			switch status {
			case "completed":
				if text == "" {
					return nil, nil
				}
				return []Segment{{StartMs: 0, EndMs: chunk.DurationMs(), Text: text}}, nil
			case "error":
				return nil, &providerError{kind: ErrDecode, detail: "assemblyai transcription failed"}
			}
		}
	}
}

func (s *AssemblyAISTT) upload(ctx context.Context, wavData []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", bytes.NewReader(wavData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &providerError{kind: ErrNetwork, detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPStatus(resp.StatusCode, "")
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &providerError{kind: ErrDecode, detail: err.Error()}
	}
	return result.UploadURL, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{"audio_url": uploadURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &providerError{kind: ErrNetwork, detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPStatus(resp.StatusCode, "")
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &providerError{kind: ErrDecode, detail: err.Error()}
	}
	return result.ID, nil
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", &providerError{kind: ErrNetwork, detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", classifyHTTPStatus(resp.StatusCode, "")
	}

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", &providerError{kind: ErrDecode, detail: err.Error()}
	}
	return result.Text, result.Status, nil
}
