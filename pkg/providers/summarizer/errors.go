// Package summarizer provides pluggable language-model backends
// implementing the notes.Summarizer capability of spec.md section 6,
// adapted from the teacher project's llm and tts provider clients.
package summarizer

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// Sentinel errors matching the Summarize error kinds of spec.md section 7.
// Any failure here discards the cycle without advancing the notes engine's
// cursor, so the same segment range is retried next cycle.
var (
	ErrParseFailure    = errors.New("summarize: failed to parse backend response")
	ErrNetwork         = errors.New("summarize: network error")
	ErrTimeout         = errors.New("summarize: request timed out")
	ErrAuthInvalid     = errors.New("summarize: authentication invalid")
	ErrSchemaViolation = errors.New("summarize: response violated the patch schema")
)

type providerError struct {
	kind   error
	detail string
}

func (e *providerError) Error() string { return e.kind.Error() + ": " + e.detail }
func (e *providerError) Unwrap() error { return e.kind }

// newHTTPClient builds the *http.Client the one-shot HTTP backends in this
// package dial through, bounding only the TCP connect phase with
// connectTimeout; the overall per-call deadline is the notes engine's
// responsibility via context.WithTimeout around Summarize.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}
}

func classifyHTTPStatus(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return &providerError{kind: ErrAuthInvalid, detail: body}
	case status == 408 || status == 429:
		return &providerError{kind: ErrTimeout, detail: body}
	case status >= 500:
		return &providerError{kind: ErrNetwork, detail: body}
	default:
		return &providerError{kind: ErrParseFailure, detail: body}
	}
}
