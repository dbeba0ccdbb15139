package stt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAssemblyAISTT_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/abc"})
		case r.Method == http.MethodPost && r.URL.Path == "/transcript":
			json.NewEncoder(w).Encode(map[string]string{"id": "transcript-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/transcript/transcript-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "completed", "text": "assemblyai transcription"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := &AssemblyAISTT{apiKey: "test-key", baseURL: server.URL, pollWait: time.Millisecond, client: server.Client()}
	segments, err := s.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "assemblyai transcription" {
		t.Fatalf("unexpected segments: %+v", segments)
	}
}

func TestAssemblyAISTT_ErrorStatusSurfacesDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/abc"})
		case r.Method == http.MethodPost && r.URL.Path == "/transcript":
			json.NewEncoder(w).Encode(map[string]string{"id": "transcript-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/transcript/transcript-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "error"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := &AssemblyAISTT{apiKey: "test-key", baseURL: server.URL, pollWait: time.Millisecond, client: server.Client()}
	_, err := s.Transcribe(context.Background(), testChunk())
	if err == nil {
		t.Fatal("expected an error when AssemblyAI reports transcription status error")
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestAssemblyAISTT_EmptyTextYieldsNoSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/abc"})
		case r.Method == http.MethodPost && r.URL.Path == "/transcript":
			json.NewEncoder(w).Encode(map[string]string{"id": "transcript-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/transcript/transcript-1":
			json.NewEncoder(w).Encode(map[string]string{"status": "completed", "text": ""})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := &AssemblyAISTT{apiKey: "test-key", baseURL: server.URL, pollWait: time.Millisecond, client: server.Client()}
	segments, err := s.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("expected no segments, got %+v", segments)
	}
}
