package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"mealgen/pkg/types"
)

// Sink is the ordered, append-only destination of a run's snapshot events.
// Emit is only ever called from the run's control goroutine.
type Sink interface {
	Emit(ctx context.Context, ev types.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev types.Event) error

func (f SinkFunc) Emit(ctx context.Context, ev types.Event) error { return f(ctx, ev) }

// ErrSinkClosed is returned by Emit after Close.
var ErrSinkClosed = errors.New("sink closed")

// ChannelSink pushes events into a bounded channel drained by the transport.
// Emit blocks while the buffer is full, so a slow reader applies backpressure
// to the run instead of growing memory.
type ChannelSink struct {
	ch     chan types.Event
	mu     sync.Mutex
	closed bool
}

// NewChannelSink returns a sink whose channel holds up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan types.Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events is the receive side; it is closed by Close.
func (s *ChannelSink) Events() <-chan types.Event { return s.ch }

// Close ends the stream. It must be called by the producer after its last Emit.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// WriterSink writes one JSON object per line (NDJSON) and flushes after each.
type WriterSink struct {
	W     io.Writer
	Flush func()
}

func (s WriterSink) Emit(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.W.Write(append(b, '\n')); err != nil {
		return err
	}
	if s.Flush != nil {
		s.Flush()
	}
	return nil
}

// MemorySink records events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *MemorySink) Emit(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}
