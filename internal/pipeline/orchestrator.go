package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mealgen/pkg/types"
)

// Orchestrator runs generation pipelines. It holds configuration only; every
// call to Run owns its own state, so concurrent runs never share bookkeeping.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator, applying package defaults to unset fields.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Stream starts a run and returns its events on a bounded channel that is
// closed after the last event. Cancel ctx to abandon the run.
func (o *Orchestrator) Stream(ctx context.Context, opts RunOptions) <-chan types.Event {
	sink := NewChannelSink(o.cfg.EventBuffer)
	go func() {
		defer sink.Close()
		_ = o.Run(ctx, opts, sink)
	}()
	return sink.Events()
}

// RunBuffered executes one run behind a bounded channel of EventBuffer events
// and copies them to sink on the calling goroutine, so a slow sink applies
// backpressure to the run without blocking its control loop mid-merge. It
// returns the sink's error when sink failed first, otherwise Run's result.
func (o *Orchestrator) RunBuffered(ctx context.Context, opts RunOptions, sink Sink) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := NewChannelSink(o.cfg.EventBuffer)
	done := make(chan error, 1)
	go func() {
		defer ch.Close()
		done <- o.Run(rctx, opts, ch)
	}()

	var (
		sinkErr error
		grace   context.Context
	)
	for ev := range ch.Events() {
		if sinkErr != nil {
			continue
		}
		ectx := ctx
		if ctx.Err() != nil {
			if interruption(ctx) == nil {
				continue
			}
			if grace == nil {
				var gcancel context.CancelFunc
				grace, gcancel = graceContext(ctx)
				defer gcancel()
			}
			ectx = grace
		}
		if err := sink.Emit(ectx, ev); err != nil {
			sinkErr = err
			cancel()
		}
	}
	runErr := <-done
	if sinkErr != nil {
		return sinkErr
	}
	return runErr
}

// Run executes one generation run, writing snapshot events to sink in order:
// one templates event, updates and at most one grocery_list event, then
// exactly one terminal event (complete or error) unless ctx is canceled or the
// sink fails first. It returns nil on completion, the stage error when the
// run ended with an error event, or the context/sink error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions, sink Sink) (err error) {
	if o.cfg.Stages == nil {
		return errors.New("pipeline: no stages configured")
	}
	n := opts.RecipeCount
	if n == 0 {
		n = o.cfg.RecipeCount
	}
	if n < 0 || n > MaxRecipeCount {
		return fmt.Errorf("%w: %d", ErrInvalidRecipeCount, n)
	}
	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		o:     o,
		id:    id,
		n:     n,
		sink:  sink,
		log:   o.cfg.Logger.With().Str("run_id", id).Logger(),
		start: time.Now(),
	}
	runsInflight.Inc()
	r.publish(EventRunStart, map[string]any{"recipe_count": n})
	r.log.Info().Int("recipe_count", n).Msg("run start")

	defer func() {
		runsInflight.Dec()
		r.cleanup()
		outcome := r.outcome(err)
		runsTotal.WithLabelValues(outcome).Inc()
		runDuration.WithLabelValues(outcome).Observe(time.Since(r.start).Seconds())
		r.publish(EventRunEnd, map[string]any{"outcome": outcome, "state": r.state.String()})
		ev := r.log.Info()
		if err != nil && outcome != "complete" {
			ev = r.log.Warn().Err(err)
		}
		ev.Str("outcome", outcome).Dur("dur", time.Since(r.start)).Msg("run end")
	}()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pipeline: internal error: %v", p)
			r.log.Error().Interface("panic", p).Msg("orchestrator fault")
			if !r.terminated && ctx.Err() == nil {
				if e := r.fail(ctx, err); e != err {
					err = e
				}
			}
		}
	}()

	err = r.execute(ctx)
	if err != nil && !r.terminated {
		if cause := interruption(ctx); cause != nil {
			err = r.interrupt(ctx, cause)
		}
	}
	return err
}

// interruption returns the error to report when ctx ended while the reader
// may still be listening: the deadline passed or the server is stopping.
// It returns nil for a plain cancellation, which means the reader left.
func interruption(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrShuttingDown):
		return ErrShuttingDown
	case errors.Is(cause, context.DeadlineExceeded):
		return ErrRunDeadline
	}
	return nil
}

// graceContext detaches from ctx for a short window so an interrupted run can
// still deliver its final events.
func graceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalGrace)
}

// run is the per-invocation state of the control goroutine.
type run struct {
	o     *Orchestrator
	id    string
	n     int
	sink  Sink
	log   zerolog.Logger
	start time.Time

	state      State
	st         *runState
	results    chan result
	terminated bool
}

func (r *run) execute(ctx context.Context) error {
	stages := r.o.cfg.Stages

	t0 := time.Now()
	templates, err := stages.Templates(ctx, r.n)
	stageDuration.WithLabelValues("templates", statusLabel(err)).Observe(time.Since(t0).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Error().Err(err).Msg("template generation failed")
		return r.fail(ctx, err)
	}
	if err := validateTemplates(templates, r.n); err != nil {
		r.log.Error().Err(err).Msg("template generation returned unusable templates")
		return r.fail(ctx, err)
	}

	r.st = newRunState(templates)
	r.results = make(chan result, 2*len(templates))
	r.transition(StateTemplatesReady)
	if err := r.emit(ctx, types.TemplatesEvent(r.st.snapshot())); err != nil {
		return err
	}

	for _, t := range templates {
		r.startRecipe(ctx, t)
	}
	r.transition(StateDetailsInFlight)

	for r.st.detailsPending() > 0 {
		batch, err := r.wave(ctx, 0)
		if err != nil {
			return err
		}
		wavesTotal.WithLabelValues("details").Inc()
		if err := r.applyWave(ctx, batch); err != nil {
			return err
		}
	}

	r.transition(StateGroceryReady)
	detailed := r.st.detailed()
	t0 = time.Now()
	items, err := stages.GroceryList(ctx, detailed)
	stageDuration.WithLabelValues("grocery_list", statusLabel(err)).Observe(time.Since(t0).Seconds())
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil && r.o.cfg.ContinueOnGroceryError:
		r.log.Error().Err(err).Int("recipes", len(detailed)).Msg("grocery list failed; continuing")
	case err != nil:
		r.log.Error().Err(err).Int("recipes", len(detailed)).Msg("grocery list failed")
		return r.fail(ctx, err)
	default:
		if items == nil {
			items = []types.GroceryItem{}
		}
		r.st.groceryList = items
		if err := r.emit(ctx, types.GroceryListEvent(items)); err != nil {
			return err
		}
	}

	r.transition(StateImagesDraining)
	for r.st.imagesPending() > 0 {
		batch, err := r.wave(ctx, r.o.cfg.WaveTimeout)
		if errors.Is(err, errWaveTimeout) {
			ids := r.st.forceImages()
			for _, id := range ids {
				subtasksTotal.WithLabelValues(kindImage.String(), outcomeTimeout).Inc()
				r.publish(EventForcedImage, map[string]any{"recipe_id": id})
			}
			r.log.Warn().Ints("recipe_ids", ids).Dur("wave_timeout", r.o.cfg.WaveTimeout).Msg("image wave timed out; finalizing without images")
			if err := r.emit(ctx, types.UpdatesEvent(r.st.snapshot(ids...))); err != nil {
				return err
			}
			break
		}
		if err != nil {
			return err
		}
		wavesTotal.WithLabelValues("images").Inc()
		if err := r.applyWave(ctx, batch); err != nil {
			return err
		}
	}

	if !r.st.allProcessed() {
		return r.fail(ctx, errors.New("pipeline: run finished with unprocessed recipes"))
	}
	r.transition(StateComplete)
	return r.emitTerminal(ctx, types.CompleteEvent())
}

// startRecipe fans out the detail and image sub-tasks for t. A recipe whose
// detail sub-task is already in flight is left alone and false is returned.
func (r *run) startRecipe(ctx context.Context, t Template) bool {
	dk := taskKey{id: t.ID, kind: kindDetail}
	if r.st.inFlight(dk) {
		subtasksTotal.WithLabelValues(kindDetail.String(), outcomeDropped).Inc()
		r.log.Debug().Int("recipe_id", t.ID).Str("title", t.Title).Msg("detail already in flight; not starting again")
		return false
	}
	stages := r.o.cfg.Stages

	dctx, dcancel := context.WithCancel(ctx)
	r.st.track(&subTask{key: dk, title: t.Title, cancel: dcancel, started: time.Now()})
	go func() {
		defer recoverInto(r.results, dk)
		d, err := stages.Details(dctx, t)
		r.results <- result{key: dk, details: d, err: err}
	}()

	ik := taskKey{id: t.ID, kind: kindImage}
	ictx, icancel := context.WithCancel(ctx)
	r.st.track(&subTask{key: ik, title: t.Title, cancel: icancel, started: time.Now()})
	go func() {
		defer recoverInto(r.results, ik)
		r.results <- r.o.imageTask(ictx, ik, t)
	}()
	return true
}

// recoverInto turns a panicking sub-task into a failed result so the run
// still sees exactly one result for key.
func recoverInto(results chan<- result, key taskKey) {
	if p := recover(); p != nil {
		results <- result{key: key, err: fmt.Errorf("sub-task panic: %v", p)}
	}
}

type encoded struct {
	image string
	err   error
}

// imageTask generates and encodes one image. The encode step is the task's
// final resolution and is bounded by TaskTimeout.
func (o *Orchestrator) imageTask(ctx context.Context, key taskKey, t Template) result {
	raw := o.cfg.Stages.Image(ctx, t)
	if len(raw) == 0 {
		return result{key: key}
	}
	done := make(chan encoded, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- encoded{err: fmt.Errorf("image encode panic: %v", p)}
			}
		}()
		s, err := o.cfg.Stages.EncodeImage(raw)
		done <- encoded{image: s, err: err}
	}()
	timer := time.NewTimer(o.cfg.TaskTimeout)
	defer timer.Stop()
	select {
	case e := <-done:
		return result{key: key, image: e.image, err: e.err}
	case <-timer.C:
		return result{key: key, err: ErrTaskTimeout}
	case <-ctx.Done():
		return result{key: key, err: ctx.Err()}
	}
}

// wave blocks until at least one sub-task result is available, then collects
// whatever else has already arrived. timeout <= 0 waits without a bound.
func (r *run) wave(ctx context.Context, timeout time.Duration) ([]result, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	var batch []result
	select {
	case res := <-r.results:
		batch = append(batch, res)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, errWaveTimeout
	}
	for {
		select {
		case res := <-r.results:
			batch = append(batch, res)
		default:
			return batch, nil
		}
	}
}

// applyWave merges a batch and emits one updates event with the records it touched.
func (r *run) applyWave(ctx context.Context, batch []result) error {
	var touched []int
	seen := make(map[int]bool, len(batch))
	for _, res := range batch {
		if !r.mergeResult(res) {
			continue
		}
		if !seen[res.key.id] {
			seen[res.key.id] = true
			touched = append(touched, res.key.id)
		}
	}
	if len(touched) == 0 {
		return nil
	}
	return r.emit(ctx, types.UpdatesEvent(r.st.snapshot(touched...)))
}

// mergeResult merges one result into run state and accounts for it.
func (r *run) mergeResult(res result) bool {
	if !r.st.merge(res) {
		subtasksTotal.WithLabelValues(res.key.kind.String(), outcomeDropped).Inc()
		r.log.Debug().Int("recipe_id", res.key.id).Str("kind", res.key.kind.String()).Msg("result no longer pending; dropped")
		return false
	}
	outcome := outcomeOK
	switch {
	case res.err != nil && errors.Is(res.err, ErrTaskTimeout):
		outcome = outcomeTimeout
	case res.err != nil:
		outcome = outcomeFailed
	case res.key.kind == kindImage && res.image == "":
		outcome = outcomeEmpty
	}
	subtasksTotal.WithLabelValues(res.key.kind.String(), outcome).Inc()
	r.publish(EventSubTaskDone, map[string]any{
		"recipe_id": res.key.id,
		"kind":      res.key.kind.String(),
		"outcome":   outcome,
	})
	l := r.log.With().Int("recipe_id", res.key.id).Str("title", r.st.title(res.key.id)).Str("kind", res.key.kind.String()).Logger()
	switch {
	case res.err != nil && res.key.kind == kindDetail:
		l.Error().Err(res.err).Msg("detail generation failed")
	case res.err != nil:
		l.Warn().Err(res.err).Msg("image unavailable")
	default:
		l.Debug().Str("outcome", outcome).Msg("sub-task merged")
	}
	return true
}

func (r *run) emit(ctx context.Context, ev types.Event) error {
	if err := r.sink.Emit(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("emit failed; abandoning run")
		return err
	}
	return nil
}

// emitTerminal writes the terminal event; it is a no-op after the first call.
func (r *run) emitTerminal(ctx context.Context, ev types.Event) error {
	if r.terminated {
		return nil
	}
	r.terminated = true
	return r.emit(ctx, ev)
}

// fail moves the run to StateError and emits the error event. It returns
// cause, or the sink error when the event could not be delivered.
func (r *run) fail(ctx context.Context, cause error) error {
	r.transition(StateError)
	if err := r.emitTerminal(ctx, types.ErrorEvent(cause.Error())); err != nil {
		return err
	}
	return cause
}

// interrupt ends a run whose context expired with an error event sent on a
// grace context.
func (r *run) interrupt(ctx context.Context, cause error) error {
	gctx, cancel := graceContext(ctx)
	defer cancel()
	r.log.Warn().Err(cause).Str("state", r.state.String()).Msg("run interrupted")
	return r.fail(gctx, cause)
}

// cleanup cancels every sub-task that has not reported.
func (r *run) cleanup() {
	if r.st == nil {
		return
	}
	for _, h := range r.st.cancelAll() {
		subtasksTotal.WithLabelValues(h.key.kind.String(), outcomeCanceled).Inc()
		r.log.Debug().Int("recipe_id", h.key.id).Str("title", h.title).Str("kind", h.key.kind.String()).
			Dur("age", time.Since(h.started)).Msg("sub-task canceled")
	}
}

func (r *run) transition(s State) {
	from := r.state
	r.state = s
	r.log.Debug().Str("from", from.String()).Str("to", s.String()).Msg("transition")
	r.publish(EventTransition, map[string]any{"from": from.String(), "to": s.String()})
}

func (r *run) publish(name string, fields map[string]any) {
	r.o.cfg.Publisher.Publish(Event{Name: name, RunID: r.id, Fields: fields})
}

func (r *run) outcome(err error) string {
	switch {
	case r.state == StateComplete && err == nil:
		return "complete"
	case r.state == StateError:
		return "error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "aborted"
	}
}

// validateTemplates checks the Templates contract: n templates, unique ids.
func validateTemplates(templates []Template, n int) error {
	if len(templates) != n {
		return fmt.Errorf("pipeline: got %d templates, want %d", len(templates), n)
	}
	seen := make(map[int]bool, n)
	for _, t := range templates {
		if seen[t.ID] {
			return fmt.Errorf("pipeline: duplicate template id %d", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
