package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mealgen/pkg/types"
)

// fakeStages is an in-memory Stages used for tests. Nil hooks fall back to
// deterministic successful behavior.
type fakeStages struct {
	templatesErr error
	templatesFn  func(ctx context.Context, n int) ([]Template, error)
	detailFn     func(ctx context.Context, t Template) (Details, error)
	imageFn      func(ctx context.Context, t Template) []byte
	encodeFn     func(raw []byte) (string, error)
	groceryFn    func(ctx context.Context, recipes []types.Recipe) ([]types.GroceryItem, error)

	mu           sync.Mutex
	detailCalls  int
	imageCalls   int
	groceryCalls int
	groceryIn    []types.Recipe
}

func (f *fakeStages) Templates(ctx context.Context, n int) ([]Template, error) {
	if f.templatesFn != nil {
		return f.templatesFn(ctx, n)
	}
	if f.templatesErr != nil {
		return nil, f.templatesErr
	}
	out := make([]Template, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Template{
			ID:                i,
			Title:             fmt.Sprintf("Meal %d", i),
			Description:       fmt.Sprintf("description %d", i),
			VisualDescription: fmt.Sprintf("plated meal %d", i),
		})
	}
	return out, nil
}

func (f *fakeStages) Details(ctx context.Context, t Template) (Details, error) {
	f.mu.Lock()
	f.detailCalls++
	f.mu.Unlock()
	if f.detailFn != nil {
		return f.detailFn(ctx, t)
	}
	return Details{
		Ingredients:  []types.Ingredient{{Name: fmt.Sprintf("ingredient %d", t.ID), Quantity: "1", Unit: "cup"}},
		Instructions: []string{"cook " + t.Title},
	}, nil
}

func (f *fakeStages) Image(ctx context.Context, t Template) []byte {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	if f.imageFn != nil {
		return f.imageFn(ctx, t)
	}
	return []byte(fmt.Sprintf("img%d", t.ID))
}

func (f *fakeStages) EncodeImage(raw []byte) (string, error) {
	if f.encodeFn != nil {
		return f.encodeFn(raw)
	}
	return "b64:" + string(raw), nil
}

func (f *fakeStages) GroceryList(ctx context.Context, recipes []types.Recipe) ([]types.GroceryItem, error) {
	f.mu.Lock()
	f.groceryCalls++
	f.groceryIn = recipes
	f.mu.Unlock()
	if f.groceryFn != nil {
		return f.groceryFn(ctx, recipes)
	}
	items := make([]types.GroceryItem, 0, len(recipes))
	for _, r := range recipes {
		for _, in := range r.Ingredients {
			items = append(items, types.GroceryItem{Name: in.Name, Quantity: in.Quantity, Unit: in.Unit})
		}
	}
	return items, nil
}

func (f *fakeStages) calls() (detail, image, grocery int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls, f.imageCalls, f.groceryCalls
}

func (f *fakeStages) groceryInput() []types.Recipe {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groceryIn
}

var errBoom = errors.New("boom")

// newTestOrchestrator returns an orchestrator over stages with short timeouts.
func newTestOrchestrator(stages Stages, mutate func(*Config)) *Orchestrator {
	cfg := Config{
		Stages:      stages,
		RecipeCount: 3,
		WaveTimeout: 2 * time.Second,
		TaskTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

// runCollect executes one run into a MemorySink and returns its events.
func runCollect(t *testing.T, o *Orchestrator, opts RunOptions) ([]types.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sink := &MemorySink{}
	err := o.Run(ctx, opts, sink)
	return sink.Events(), err
}

// foldRecipes applies templates and updates events to produce the client view.
func foldRecipes(events []types.Event) map[int]types.Recipe {
	out := make(map[int]types.Recipe)
	for _, ev := range events {
		if ev.Type != types.EventTemplates && ev.Type != types.EventUpdates {
			continue
		}
		for _, r := range ev.Recipes {
			out[r.ID] = r
		}
	}
	return out
}

func eventTypes(events []types.Event) []types.EventType {
	out := make([]types.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func countType(events []types.Event, typ types.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// assertStreamShape checks the ordering guarantees every finished stream has.
func assertStreamShape(t *testing.T, events []types.Event, terminal types.EventType) {
	t.Helper()
	if len(events) == 0 {
		t.Fatalf("no events")
	}
	last := events[len(events)-1]
	if last.Type != terminal {
		t.Fatalf("last event = %s, want %s (all: %v)", last.Type, terminal, eventTypes(events))
	}
	terminals := 0
	for _, ev := range events {
		if ev.Type.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want 1 (all: %v)", terminals, eventTypes(events))
	}
	if terminal == types.EventComplete && events[0].Type != types.EventTemplates {
		t.Fatalf("first event = %s, want templates", events[0].Type)
	}
	if n := countType(events, types.EventTemplates); n > 1 {
		t.Fatalf("templates events = %d", n)
	}
	if n := countType(events, types.EventGroceryList); n > 1 {
		t.Fatalf("grocery_list events = %d", n)
	}
}
