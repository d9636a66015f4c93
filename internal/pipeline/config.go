package pipeline

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultRecipeCount = 7
	MaxRecipeCount     = 14
	defaultWaveTimeout = 30 * time.Second
	defaultTaskTimeout = 5 * time.Second
	defaultEventBuffer = 16
	// terminalGrace bounds delivery of the final events of an interrupted run.
	terminalGrace = time.Second
)

// Config encapsulates all tunables for Orchestrator construction.
type Config struct {
	Stages Stages
	// RecipeCount is the per-run template count when RunOptions does not set one.
	RecipeCount int
	// WaveTimeout bounds each image-drain wave; on expiry every recipe still
	// waiting for an image is finalized without one.
	WaveTimeout time.Duration
	// TaskTimeout bounds a sub-task's final resolution (image post-processing);
	// exceeding it counts as that sub-task failing.
	TaskTimeout time.Duration
	// EventBuffer sizes the channel between a run and its reader (Stream, RunBuffered).
	EventBuffer int
	// ContinueOnGroceryError keeps the run alive (no grocery_list event) when
	// grocery-list synthesis fails, instead of ending it with an error event.
	ContinueOnGroceryError bool
	Logger                 zerolog.Logger
	Publisher              EventPublisher
}

func (c Config) withDefaults() Config {
	if c.RecipeCount <= 0 {
		c.RecipeCount = DefaultRecipeCount
	}
	if c.RecipeCount > MaxRecipeCount {
		c.RecipeCount = MaxRecipeCount
	}
	if c.WaveTimeout <= 0 {
		c.WaveTimeout = defaultWaveTimeout
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = defaultTaskTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}

// RunOptions carries per-run inputs.
type RunOptions struct {
	// RunID correlates logs, lifecycle events and the client stream. Generated when empty.
	RunID string
	// RecipeCount overrides Config.RecipeCount when > 0.
	RecipeCount int
}
