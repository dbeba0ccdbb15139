package transcribe

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/meetloop-ai/meetloop-core/pkg/audioproc"
	"github.com/meetloop-ai/meetloop-core/pkg/core"
	"github.com/meetloop-ai/meetloop-core/pkg/providers/stt"
)

const (
	maxRetries         = 3
	backoffBase        = 500 * time.Millisecond
	backoffCap         = 5 * time.Second
	defaultReadTimeout = 60 * time.Second
	latencyEWMAAlpha   = 0.3
)

// EventKind distinguishes the notifications a Worker emits.
type EventKind int

const (
	EventSegments EventKind = iota
	EventProviderError
	EventProviderStatus
)

// Event is one transcriber-worker notification, the TranscriptEvent union
// of spec.md section 4.4.
type Event struct {
	Kind      EventKind
	Chunk     audioproc.AudioChunk
	Segments  []stt.Segment
	LatencyMs float64
	ErrorKind string
	Message   string
	Backend   string
	OK        bool
}

// Command is an inbound instruction for the worker: a backend switch
// (spec.md section 4.4's SwitchTranscriber), optionally carrying a grace
// deadline past which the worker stops retrying the in-flight chunk with
// the stale backend. A zero Deadline means no grace window: the switch
// applies at the worker's very next idle point regardless of how long the
// in-flight chunk's own retries take.
type Command struct {
	Backend  stt.Provider
	Deadline time.Time
}

// Worker is the transcriber-worker thread of spec.md section 4.4: it pulls
// chunks one at a time from a ChunkQueue, invokes the active speech-to-text
// backend with retry/backoff on transient errors, tracks an EWMA latency,
// and emits Events for the pipeline to forward onto the event bus.
type Worker struct {
	queue       *ChunkQueue
	backend     stt.Provider
	readTimeout time.Duration
	emit        func(Event)
	logger      core.Logger

	commands chan Command
	paused   bool

	// switchDeadlineNs is the unix-nanosecond deadline of the most recently
	// requested backend switch, or 0 if none is pending or the pending one
	// carries no deadline. It is written from SwitchBackend's caller
	// goroutine and read from the worker's own goroutine inside
	// transcribeWithRetry, so it needs to be atomic independent of the
	// commands channel handoff.
	switchDeadlineNs atomic.Int64

	avgLatencyMs float64
	haveLatency  bool
}

// NewWorker constructs a Worker over queue with the given initial backend.
// readTimeout bounds each Transcribe attempt, per spec.md section 5's
// read <= 60s suspension-point contract; zero falls back to the 60s
// default. emit is called from the worker's own goroutine for every Event
// produced.
func NewWorker(queue *ChunkQueue, backend stt.Provider, readTimeout time.Duration, emit func(Event), logger core.Logger) *Worker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Worker{
		queue:       queue,
		backend:     backend,
		readTimeout: readTimeout,
		emit:        emit,
		logger:      logger,
		commands:    make(chan Command, 1),
	}
}

// SwitchBackend requests a backend swap. Per spec.md section 4.4, the
// in-flight chunk (if any) always finishes with the current backend first;
// the swap happens at the worker's next idle point, never interrupting work
// already underway. If deadline is non-zero, transcribeWithRetry stops
// issuing further retry attempts against the stale backend once it passes,
// so a hung backend cannot indefinitely delay the switch.
func (w *Worker) SwitchBackend(backend stt.Provider, deadline time.Time) {
	if deadline.IsZero() {
		w.switchDeadlineNs.Store(0)
	} else {
		w.switchDeadlineNs.Store(deadline.UnixNano())
	}
	select {
	case w.commands <- Command{Backend: backend, Deadline: deadline}:
	default:
		// A switch is already queued; replace it so the latest request wins
		// without blocking the caller.
		select {
		case <-w.commands:
		default:
		}
		w.commands <- Command{Backend: backend, Deadline: deadline}
	}
}

// Run drives the worker until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.commands:
			w.applySwitch(cmd)
		case chunk, ok := <-w.queue.Chunks():
			if !ok {
				return
			}
			w.handleChunk(ctx, chunk)
			// Apply any switch queued while we were transcribing: the
			// in-flight chunk above always ran against the backend that was
			// active when it was pulled.
			select {
			case cmd := <-w.commands:
				w.applySwitch(cmd)
			default:
			}
		}
	}
}

func (w *Worker) applySwitch(cmd Command) {
	w.switchDeadlineNs.Store(0)
	if cmd.Backend == nil {
		return
	}
	old := w.backend.Name()
	w.backend = cmd.Backend
	w.paused = false
	w.logger.Info("transcriber backend switched", "from", old, "to", cmd.Backend.Name())
	w.emit(Event{Kind: EventProviderStatus, Backend: cmd.Backend.Name(), OK: true})
}

func (w *Worker) handleChunk(ctx context.Context, chunk audioproc.AudioChunk) {
	if w.paused {
		// Fatal error left us idling for this backend; drop the chunk
		// rather than pile up stale audio until a switch command arrives.
		return
	}

	start := time.Now()
	segments, err := w.transcribeWithRetry(ctx, chunk)
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		if stt.Transient(err) {
			w.logger.Warn("transcribe failed after retries", "backend", w.backend.Name(), "error", err)
			w.emit(Event{Kind: EventProviderError, Chunk: chunk, ErrorKind: "transient", Message: err.Error()})
			return
		}
		w.logger.Error("transcribe failed fatally", "backend", w.backend.Name(), "error", err)
		w.paused = true
		w.emit(Event{Kind: EventProviderStatus, Backend: w.backend.Name(), OK: false})
		w.emit(Event{Kind: EventProviderError, Chunk: chunk, ErrorKind: "fatal", Message: err.Error()})
		return
	}

	w.recordLatency(latency)

	if len(segments) == 0 {
		return
	}
	w.emit(Event{Kind: EventSegments, Chunk: chunk, Segments: segments, LatencyMs: w.avgLatencyMs})
}

// transcribeWithRetry retries Network/Timeout/RateLimited errors up to
// maxRetries times with exponential backoff (base 500ms, cap 5s), per
// spec.md section 7. Any other error returns immediately. If a backend
// switch with a grace deadline is pending and that deadline has already
// passed, no further retry attempt is started against the stale backend:
// the current error is returned so Run can apply the switch right away.
func (w *Worker) transcribeWithRetry(ctx context.Context, chunk audioproc.AudioChunk) ([]stt.Segment, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 && w.switchDeadlinePassed() {
			return nil, lastErr
		}

		callCtx, cancel := context.WithTimeout(ctx, w.readTimeout)
		segments, err := w.backend.Transcribe(callCtx, chunk)
		cancel()

		if err == nil {
			return segments, nil
		}
		lastErr = err
		if !stt.Transient(err) || attempt == maxRetries {
			return nil, err
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// switchDeadlinePassed reports whether a pending backend switch carries a
// grace deadline that has already elapsed.
func (w *Worker) switchDeadlinePassed() bool {
	deadline := w.switchDeadlineNs.Load()
	return deadline != 0 && time.Now().UnixNano() >= deadline
}

// recordLatency folds latencyMs into the EWMA the worker reports alongside
// subsequent segment events, per spec.md section 4.4's alpha=0.3 metric.
func (w *Worker) recordLatency(latencyMs float64) {
	if !w.haveLatency {
		w.avgLatencyMs = latencyMs
		w.haveLatency = true
		return
	}
	w.avgLatencyMs = latencyEWMAAlpha*latencyMs + (1-latencyEWMAAlpha)*w.avgLatencyMs
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase * time.Duration(math.Pow(2, float64(attempt)))
	if d > backoffCap {
		return backoffCap
	}
	return d
}
