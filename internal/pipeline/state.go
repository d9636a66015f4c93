package pipeline

import (
	"context"
	"time"

	"mealgen/pkg/types"
)

// State is the run's position in the stage sequence.
type State int

const (
	StateInit State = iota
	StateTemplatesReady
	StateDetailsInFlight
	StateGroceryReady
	StateImagesDraining
	StateComplete
	StateError
)

func (s State) String() string {
	names := [...]string{
		"init",
		"templates_ready",
		"details_in_flight",
		"grocery_ready",
		"images_draining",
		"complete",
		"error",
	}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// subTaskKind distinguishes the two per-recipe sub-tasks.
type subTaskKind int

const (
	kindDetail subTaskKind = iota
	kindImage
)

func (k subTaskKind) String() string {
	if k == kindImage {
		return "image"
	}
	return "detail"
}

// taskKey correlates a sub-task with its recipe.
type taskKey struct {
	id   int
	kind subTaskKind
}

// subTask is the handle for one in-flight sub-task.
type subTask struct {
	key     taskKey
	title   string
	cancel  context.CancelFunc
	started time.Time
}

// result is what a sub-task reports, exactly once.
type result struct {
	key     taskKey
	details Details
	image   string
	err     error
}

// runState is owned by a run's control goroutine; nothing else touches it.
type runState struct {
	templates []Template
	records   map[int]*types.Recipe

	pendingDetails map[int]struct{}
	pendingImages  map[int]struct{}
	detailDone     map[int]struct{}
	imageDone      map[int]struct{}

	// tasks maps each in-flight sub-task to its handle. A key present here is
	// what makes a second detail request for the same recipe a no-op.
	tasks map[taskKey]*subTask

	groceryList []types.GroceryItem
}

func newRunState(templates []Template) *runState {
	st := &runState{
		templates:      templates,
		records:        make(map[int]*types.Recipe, len(templates)),
		pendingDetails: make(map[int]struct{}, len(templates)),
		pendingImages:  make(map[int]struct{}, len(templates)),
		detailDone:     make(map[int]struct{}, len(templates)),
		imageDone:      make(map[int]struct{}, len(templates)),
		tasks:          make(map[taskKey]*subTask, 2*len(templates)),
	}
	for _, t := range templates {
		st.records[t.ID] = &types.Recipe{
			ID:                t.ID,
			Title:             t.Title,
			Description:       t.Description,
			VisualDescription: t.VisualDescription,
			Ingredients:       []types.Ingredient{},
			Instructions:      []string{},
			ImageLoading:      true,
			DetailLoading:     true,
		}
	}
	return st
}

// inFlight reports whether a sub-task for key is outstanding.
func (st *runState) inFlight(key taskKey) bool {
	_, ok := st.tasks[key]
	return ok
}

// track registers a started sub-task and marks its dimension pending.
func (st *runState) track(t *subTask) {
	st.tasks[t.key] = t
	switch t.key.kind {
	case kindDetail:
		st.pendingDetails[t.key.id] = struct{}{}
	case kindImage:
		st.pendingImages[t.key.id] = struct{}{}
	}
}

// take removes key from its pending set and returns its handle. ok is false
// when the key is not pending, which makes merging a result twice impossible.
func (st *runState) take(key taskKey) (t *subTask, ok bool) {
	pending := st.pendingDetails
	done := st.detailDone
	if key.kind == kindImage {
		pending = st.pendingImages
		done = st.imageDone
	}
	if _, ok := pending[key.id]; !ok {
		return nil, false
	}
	delete(pending, key.id)
	done[key.id] = struct{}{}
	t = st.tasks[key]
	delete(st.tasks, key)
	return t, true
}

// merge applies one sub-task result. It returns false when the result was
// not pending (already merged or forced) and was therefore dropped.
func (st *runState) merge(res result) bool {
	if _, ok := st.take(res.key); !ok {
		return false
	}
	rec := st.records[res.key.id]
	switch res.key.kind {
	case kindDetail:
		rec.DetailLoading = false
		if res.err != nil {
			rec.DetailFailed = true
			return true
		}
		rec.Ingredients = append([]types.Ingredient{}, res.details.Ingredients...)
		rec.Instructions = append([]string{}, res.details.Instructions...)
	case kindImage:
		rec.ImageLoading = false
		if res.err == nil && res.image != "" {
			img := res.image
			rec.Image = &img
		}
	}
	return true
}

// forceImages finalizes every recipe still waiting for an image as having
// none, cancels those sub-tasks and returns the affected ids in template order.
func (st *runState) forceImages() []int {
	var ids []int
	for _, t := range st.templates {
		key := taskKey{id: t.ID, kind: kindImage}
		h, ok := st.take(key)
		if !ok {
			continue
		}
		if h != nil && h.cancel != nil {
			h.cancel()
		}
		rec := st.records[t.ID]
		rec.Image = nil
		rec.ImageLoading = false
		ids = append(ids, t.ID)
	}
	return ids
}

// cancelAll cancels every sub-task still in flight and returns them.
func (st *runState) cancelAll() []*subTask {
	var out []*subTask
	for key, h := range st.tasks {
		if h.cancel != nil {
			h.cancel()
		}
		out = append(out, h)
		delete(st.tasks, key)
	}
	return out
}

func (st *runState) detailsPending() int { return len(st.pendingDetails) }
func (st *runState) imagesPending() int  { return len(st.pendingImages) }

// processed reports whether id reached a final disposition for both detail and image.
func (st *runState) processed(id int) bool {
	_, d := st.detailDone[id]
	_, i := st.imageDone[id]
	return d && i
}

// allProcessed reports whether every template id is processed.
func (st *runState) allProcessed() bool {
	for _, t := range st.templates {
		if !st.processed(t.ID) {
			return false
		}
	}
	return true
}

// snapshot returns copies of the records for ids, in template order.
// With no ids it returns every record.
func (st *runState) snapshot(ids ...int) []types.Recipe {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]types.Recipe, 0, len(st.templates))
	for _, t := range st.templates {
		if len(ids) > 0 && !want[t.ID] {
			continue
		}
		out = append(out, st.records[t.ID].Clone())
	}
	return out
}

// detailed returns the records whose detail sub-task succeeded.
func (st *runState) detailed() []types.Recipe {
	var out []types.Recipe
	for _, t := range st.templates {
		rec := st.records[t.ID]
		if _, done := st.detailDone[t.ID]; done && !rec.DetailFailed {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (st *runState) title(id int) string {
	if rec, ok := st.records[id]; ok {
		return rec.Title
	}
	return ""
}
