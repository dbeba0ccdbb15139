package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audio"
	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
)

// DeepgramSTT calls Deepgram's prerecorded transcription endpoint, adapted
// from the teacher's deepgram.go client. It sends the chunk as a WAV
// payload rather than raw PCM so Deepgram can read the sample rate from
// the container instead of trusting a hardcoded Content-Type header.
type DeepgramSTT struct {
	apiKey string
	url    string
	client *http.Client
}

func NewDeepgramSTT(apiKey string, connectTimeout time.Duration) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		client: NewHTTPClient(connectTimeout),
	}
}

func (s *DeepgramSTT) Name() string { return "deepgram-stt" }

func (s *DeepgramSTT) Transcribe(ctx context.Context, chunk audioproc.AudioChunk) ([]Segment, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	u.RawQuery = params.Encode()

	wavData := audio.EncodeWAV(chunk.Samples, chunk.SampleRate)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wavData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

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
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &providerError{kind: ErrDecode, detail: err.Error()}
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return nil, nil
	}
	text := result.Results.Channels[0].Alternatives[0].Transcript
	if text == "" {
		return nil, nil
	}

	return []Segment{{StartMs: 0, EndMs: chunk.DurationMs(), Text: text}}, nil
}
