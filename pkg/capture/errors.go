package capture

import "errors"

// Sentinel errors returned by Adapter.Start, matching the CaptureError kinds
// in spec.md section 4.1. PermissionDenied terminates start; the others are
// reported once and surfaced to the shell as a ProviderStatus/Error event.
var (
	ErrPermissionDenied  = errors.New("capture: permission denied")
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
	ErrAlreadyRunning    = errors.New("capture: already running")
	ErrIO                = errors.New("capture: io error")
)
