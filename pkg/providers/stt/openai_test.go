package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAISTT_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "openai transcription"})
	}))
	defer server.Close()

	s := &OpenAISTT{apiKey: "test-key", url: server.URL, model: "whisper-1", client: server.Client()}
	segments, err := s.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "openai transcription" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
	if s.Name() != "openai-stt" {
		t.Errorf("expected openai-stt, got %s", s.Name())
	}
}

func TestOpenAISTT_EmptyTextYieldsNoSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: ""})
	}))
	defer server.Close()

	s := &OpenAISTT{apiKey: "test-key", url: server.URL, model: "whisper-1", client: server.Client()}
	segments, err := s.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("expected no segments for empty transcription, got %+v", segments)
	}
}

func TestOpenAISTT_ServerErrorClassifiesAsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := &OpenAISTT{apiKey: "test-key", url: server.URL, model: "whisper-1", client: server.Client()}
	_, err := s.Transcribe(context.Background(), testChunk())
	if !Transient(err) {
		t.Errorf("expected a transient error for a 500 response, got %v", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork for a 500 response, got %v", err)
	}
}
