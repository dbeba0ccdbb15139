// Package stt provides pluggable speech-to-text backends implementing the
// transcriber capability of spec.md section 6, adapted from the teacher
// project's net/http provider clients.
package stt

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
)

// Segment is one span of recognized speech, timestamped relative to the
// start of the chunk that produced it. The pipeline offsets these by the
// chunk's start-pts to reach session-relative milliseconds
// before handing them to the ledger.
type Segment struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// Provider is the transcriber backend capability: a named, swappable
// speech-to-text client.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, chunk audioproc.AudioChunk) ([]Segment, error)
}

// NewHTTPClient builds the *http.Client every HTTP-based provider in this
// package dials through, bounding only the TCP connect phase with
// connectTimeout. The overall per-call deadline (spec.md section 5's read
// bound) is the caller's responsibility via context.WithTimeout around
// Transcribe, since that phase also covers request upload and response
// read, not just dial.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}
}
