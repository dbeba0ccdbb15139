package bus

import "sync"

// busCapacity is generous since the bus is meant to be "unbounded but
// consumed promptly" per spec.md section 5; a large buffered channel gives
// producers room during a shell hiccup without ever blocking a pipeline
// thread on Publish.
const busCapacity = 4096

// EventBus merges CoreEvents from every pipeline stage into one stream and
// carries inbound CoreCommands on a single channel to one consumer, which
// dispatches each command kind to the stage that owns it.
// Distinct components may call Publish concurrently; ordering across
// components is not guaranteed beyond the SegmentFinalized/TranscriptUpdated
// constraint documented on the producing stages themselves.
type EventBus struct {
	events chan CoreEvent
	cmds   chan CoreCommand

	mu     sync.Mutex
	closed bool
}

// NewEventBus constructs an EventBus with the standing channel capacities.
func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan CoreEvent, busCapacity),
		cmds:   make(chan CoreCommand, 16),
	}
}

// Publish enqueues an event for the shell. It never blocks: if the event
// channel is somehow saturated (the shell has stopped consuming), the event
// is dropped rather than stalling the publishing pipeline thread.
func (b *EventBus) Publish(ev CoreEvent) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Events returns the receive side of the outbound event stream.
func (b *EventBus) Events() <-chan CoreEvent { return b.events }

// SendCommand enqueues a command from the shell. Blocks only if the command
// queue (capacity 16) is saturated, which would indicate the pipeline has
// stopped consuming commands entirely.
func (b *EventBus) SendCommand(cmd CoreCommand) {
	b.cmds <- cmd
}

// Commands returns the receive side of the inbound command stream.
func (b *EventBus) Commands() <-chan CoreCommand { return b.cmds }

// Close shuts the bus down. Safe to call once, typically after the pipeline
// has fully stopped.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
	close(b.cmds)
}
