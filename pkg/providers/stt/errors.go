package stt

import "errors"

// Sentinel errors matching the Transcribe error kinds of spec.md section 7.
// Network, Timeout, and RateLimited are transient and retried by the
// transcriber worker with exponential backoff; the rest surface as a
// provider-status error and pause the worker until a switch command.
var (
	ErrModelMissing = errors.New("stt: model missing")
	ErrAuthInvalid  = errors.New("stt: authentication invalid")
	ErrNetwork      = errors.New("stt: network error")
	ErrTimeout      = errors.New("stt: request timed out")
	ErrRateLimited  = errors.New("stt: rate limited")
	ErrDecode       = errors.New("stt: response decode failed")
)

// Transient reports whether err should be retried with backoff rather than
// surfaced as a fatal provider-status error.
func Transient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// classifyHTTPStatus maps an HTTP response status code to a sentinel error,
// the common shape every concrete backend's error path reduces to.
func classifyHTTPStatus(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return &providerError{kind: ErrAuthInvalid, detail: body}
	case status == 404:
		return &providerError{kind: ErrModelMissing, detail: body}
	case status == 429:
		return &providerError{kind: ErrRateLimited, detail: body}
	case status == 408:
		return &providerError{kind: ErrTimeout, detail: body}
	case status >= 500:
		return &providerError{kind: ErrNetwork, detail: body}
	default:
		return &providerError{kind: ErrDecode, detail: body}
	}
}

// providerError wraps a sentinel kind with the backend's raw error detail,
// so errors.Is(err, ErrNetwork) still works after wrapping for logging.
type providerError struct {
	kind   error
	detail string
}

func (e *providerError) Error() string { return e.kind.Error() + ": " + e.detail }
func (e *providerError) Unwrap() error { return e.kind }
