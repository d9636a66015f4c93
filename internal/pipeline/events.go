package pipeline

// Event is a run lifecycle notification for observers (not the client stream).
type Event struct {
	Name   string
	RunID  string
	Fields map[string]any
}

// Lifecycle event names.
const (
	EventRunStart    = "run_start"
	EventTransition  = "transition"
	EventSubTaskDone = "subtask_done"
	EventForcedImage = "image_forced"
	EventRunEnd      = "run_end"
)

// EventPublisher receives lifecycle events. Implementations must be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
