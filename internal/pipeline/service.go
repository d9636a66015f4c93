package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"mealgen/pkg/types"
)

// Defaults applied when corresponding ServiceConfig fields are unset.
const (
	defaultMaxConcurrentRuns = 4
	defaultAdmissionWait     = 2 * time.Second
)

// ServiceConfig encapsulates the admission tunables of a Service.
type ServiceConfig struct {
	MaxConcurrentRuns int
	// MaxWait is how long a run waits for a slot before it is refused.
	MaxWait time.Duration
	// Descriptive fields reported by Status.
	CompletionProvider string
	ImagesEnabled      bool
}

// Service bounds how many runs execute at once and reports status for the
// HTTP layer. Runs themselves share nothing.
type Service struct {
	orch     *Orchestrator
	slots    chan struct{}
	maxWait  time.Duration
	inflight atomic.Int64
	started  time.Time
	info     ServiceConfig
}

// NewService wraps orch with admission control.
func NewService(orch *Orchestrator, cfg ServiceConfig) *Service {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = defaultMaxConcurrentRuns
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultAdmissionWait
	}
	return &Service{
		orch:    orch,
		slots:   make(chan struct{}, cfg.MaxConcurrentRuns),
		maxWait: cfg.MaxWait,
		started: time.Now(),
		info:    cfg,
	}
}

// Generate admits and executes one run. A refused run returns an error for
// which IsTooBusy is true, before anything is written to sink.
func (s *Service) Generate(ctx context.Context, opts RunOptions, sink Sink) error {
	if opts.RecipeCount < 0 || opts.RecipeCount > MaxRecipeCount {
		return ErrInvalidRecipeCount
	}
	release, err := s.admit(ctx)
	if err != nil {
		return err
	}
	defer release()
	return s.orch.RunBuffered(ctx, opts, sink)
}

// admit reserves a run slot, waiting at most maxWait.
func (s *Service) admit(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer := time.NewTimer(s.maxWait)
	defer timer.Stop()
	select {
	case s.slots <- struct{}{}:
		s.inflight.Add(1)
		return func() {
			s.inflight.Add(-1)
			<-s.slots
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{limit: cap(s.slots)}
	}
}

// Ready reports whether runs can be served.
func (s *Service) Ready() bool { return s != nil && s.orch != nil && s.orch.cfg.Stages != nil }

// Status summarizes the service for GET /status.
func (s *Service) Status() types.StatusResponse {
	return types.StatusResponse{
		RunsInFlight:       int(s.inflight.Load()),
		MaxConcurrentRuns:  cap(s.slots),
		DefaultRecipeCount: s.orch.cfg.RecipeCount,
		CompletionProvider: s.info.CompletionProvider,
		ImagesEnabled:      s.info.ImagesEnabled,
		UptimeSeconds:      int64(time.Since(s.started).Seconds()),
	}
}
