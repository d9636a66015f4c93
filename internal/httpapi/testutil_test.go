package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mealgen/internal/pipeline"
	"mealgen/pkg/types"
)

var errSentinel = errors.New("upstream exploded")

type blockingStages struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingStages) Templates(ctx context.Context, n int) ([]pipeline.Template, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, errSentinel
}
func (blockingStages) Details(context.Context, pipeline.Template) (pipeline.Details, error) {
	return pipeline.Details{}, nil
}
func (blockingStages) Image(context.Context, pipeline.Template) []byte { return nil }
func (blockingStages) EncodeImage([]byte) (string, error)              { return "", nil }
func (blockingStages) GroceryList(context.Context, []types.Recipe) ([]types.GroceryItem, error) {
	return nil, nil
}

// tooBusy returns the error a saturated pipeline.Service produces.
func tooBusy(t *testing.T) error {
	t.Helper()
	st := blockingStages{started: make(chan struct{}), release: make(chan struct{})}
	svc := pipeline.NewService(pipeline.New(pipeline.Config{Stages: st}), pipeline.ServiceConfig{MaxConcurrentRuns: 1, MaxWait: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Generate(context.Background(), pipeline.RunOptions{}, &pipeline.MemorySink{})
	}()
	<-st.started
	err := svc.Generate(context.Background(), pipeline.RunOptions{}, &pipeline.MemorySink{})
	close(st.release)
	<-done
	if !pipeline.IsTooBusy(err) {
		t.Fatalf("expected too busy error, got %v", err)
	}
	return err
}

// hangingStages produces templates, then holds every detail sub-task until
// its context ends.
type hangingStages struct {
	detailStarted chan struct{}
	once          sync.Once
}

func newHangingStages() *hangingStages {
	return &hangingStages{detailStarted: make(chan struct{})}
}

func (h *hangingStages) Templates(ctx context.Context, n int) ([]pipeline.Template, error) {
	out := make([]pipeline.Template, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, pipeline.Template{ID: i, Title: fmt.Sprintf("Meal %d", i)})
	}
	return out, nil
}
func (h *hangingStages) Details(ctx context.Context, _ pipeline.Template) (pipeline.Details, error) {
	h.once.Do(func() { close(h.detailStarted) })
	<-ctx.Done()
	return pipeline.Details{}, ctx.Err()
}
func (*hangingStages) Image(context.Context, pipeline.Template) []byte { return nil }
func (*hangingStages) EncodeImage([]byte) (string, error)              { return "", nil }
func (*hangingStages) GroceryList(context.Context, []types.Recipe) ([]types.GroceryItem, error) {
	return nil, nil
}

// sseTypes returns the event types of an SSE body in order.
func sseTypes(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, f := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(f, "data: ")), &ev); err != nil {
			t.Fatalf("frame %q: %v", f, err)
		}
		out = append(out, ev["type"].(string))
	}
	return out
}
