package pipeline

import "errors"

// errWaveTimeout ends a drain wave that saw no completion within WaveTimeout.
var errWaveTimeout = errors.New("wave timeout")

// ErrTaskTimeout is recorded for a sub-task whose final resolution exceeded TaskTimeout.
var ErrTaskTimeout = errors.New("sub-task timed out")

// tooBusyError signals that the service is at its concurrent run limit.
type tooBusyError struct{ limit int }

func (e tooBusyError) Error() string { return "too many generation runs in flight" }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

// ErrInvalidRecipeCount is returned for a requested count outside [1, MaxRecipeCount].
var ErrInvalidRecipeCount = errors.New("invalid recipe count")

// ErrShuttingDown is the cancellation cause for runs stopped by server
// shutdown. Such runs still end with an error event.
var ErrShuttingDown = errors.New("server shutting down")

// ErrRunDeadline is reported for a run whose context deadline passed.
var ErrRunDeadline = errors.New("generation deadline exceeded")
