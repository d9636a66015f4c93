package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mealgen/internal/imagegen"
	"mealgen/internal/llm"
	"mealgen/pkg/types"
)

// fakeCompleter answers each op with canned JSON and records requests.
type fakeCompleter struct {
	responses map[string]string
	err       error
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request, out any) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.responses[req.Op]), out)
}

type fakeImages struct {
	raw    []byte
	err    error
	prompt string
	size   imagegen.Size
}

func (f *fakeImages) Generate(ctx context.Context, prompt string, size imagegen.Size) ([]byte, error) {
	f.prompt, f.size = prompt, size
	return f.raw, f.err
}

func TestGenerator_TemplatesAssignsIDsAndTruncates(t *testing.T) {
	fc := &fakeCompleter{responses: map[string]string{
		"templates": `[{"title":" Stir Fry ","description":"quick"},{"title":"Soup"},{"title":"Extra"}]`,
	}}
	g := &Generator{Completer: fc}
	got, err := g.Templates(context.Background(), 2)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 || got[0].Title != "Stir Fry" {
		t.Fatalf("templates = %+v", got)
	}
	if fc.requests[0].Schema.WrapKey != "recipes" || !strings.Contains(fc.requests[0].Prompt, "Generate 2 ") {
		t.Fatalf("request = %+v", fc.requests[0])
	}
}

func TestGenerator_TemplatesTooFew(t *testing.T) {
	g := &Generator{Completer: &fakeCompleter{responses: map[string]string{"templates": `[{"title":"A"}]`}}}
	_, err := g.Templates(context.Background(), 3)
	if !llm.IsUpstreamGeneration(err) {
		t.Fatalf("expected upstream generation error, got %v", err)
	}
}

func TestGenerator_TemplatesMissingTitle(t *testing.T) {
	g := &Generator{Completer: &fakeCompleter{responses: map[string]string{"templates": `[{"title":"A"},{"title":"  "}]`}}}
	if _, err := g.Templates(context.Background(), 2); !llm.IsUpstreamGeneration(err) {
		t.Fatalf("expected upstream generation error, got %v", err)
	}
}

func TestGenerator_DetailsValidation(t *testing.T) {
	fc := &fakeCompleter{responses: map[string]string{
		"details": `{"ingredients":[{"name":"rice","quantity":"1","unit":"cup"},{"name":" "}],"instructions":["boil"]}`,
	}}
	g := &Generator{Completer: fc}
	d, err := g.Details(context.Background(), Template{ID: 1, Title: "Rice"})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(d.Ingredients) != 1 || d.Ingredients[0].Name != "rice" {
		t.Fatalf("details = %+v", d)
	}

	fc.responses["details"] = `{"ingredients":[{"name":"rice"}],"instructions":[]}`
	if _, err := g.Details(context.Background(), Template{ID: 1, Title: "Rice"}); !llm.IsUpstreamGeneration(err) {
		t.Fatalf("expected upstream generation error, got %v", err)
	}
}

func TestGenerator_DetailsPropagatesError(t *testing.T) {
	g := &Generator{Completer: &fakeCompleter{err: errBoom}}
	if _, err := g.Details(context.Background(), Template{ID: 1}); !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
}

func TestGenerator_GroceryList(t *testing.T) {
	fc := &fakeCompleter{responses: map[string]string{
		"grocery_list": `[{"name":"rice","quantity":"2","unit":"cups"},{"name":""}]`,
	}}
	g := &Generator{Completer: fc}

	items, err := g.GroceryList(context.Background(), nil)
	if err != nil || items == nil || len(items) != 0 || len(fc.requests) != 0 {
		t.Fatalf("empty input: items=%v err=%v requests=%d", items, err, len(fc.requests))
	}

	recipes := []types.Recipe{{ID: 1, Title: "Rice", Ingredients: []types.Ingredient{{Name: "rice", Quantity: "1", Unit: "cup"}}}}
	items, err = g.GroceryList(context.Background(), recipes)
	if err != nil || len(items) != 1 || items[0].Name != "rice" {
		t.Fatalf("items=%+v err=%v", items, err)
	}
	if !strings.Contains(fc.requests[0].Prompt, "- 1 cup rice") {
		t.Fatalf("prompt missing ingredient line: %s", fc.requests[0].Prompt)
	}

	fc.responses["grocery_list"] = `[]`
	if _, err := g.GroceryList(context.Background(), recipes); !llm.IsUpstreamGeneration(err) {
		t.Fatalf("expected error for empty grocery list, got %v", err)
	}
}

func TestGenerator_ImageDisabledAndFailure(t *testing.T) {
	g := &Generator{}
	if raw := g.Image(context.Background(), Template{ID: 1}); raw != nil {
		t.Fatalf("disabled images should yield nil")
	}

	fi := &fakeImages{err: errBoom}
	g = &Generator{Images: fi}
	if raw := g.Image(context.Background(), Template{ID: 1, Title: "Soup", VisualDescription: "steaming bowl"}); raw != nil {
		t.Fatalf("transport failure should yield nil")
	}
	if fi.size != imagegen.DefaultSize || !strings.Contains(fi.prompt, "steaming bowl") {
		t.Fatalf("size=%v prompt=%q", fi.size, fi.prompt)
	}

	fi = &fakeImages{raw: []byte("png")}
	g = &Generator{Images: fi, ImageSize: imagegen.Size{Width: 512, Height: 512}}
	if raw := g.Image(context.Background(), Template{ID: 1}); string(raw) != "png" || fi.size.Width != 512 {
		t.Fatalf("raw=%q size=%v", raw, fi.size)
	}
}

func TestGenerator_EncodeImageRejectsGarbage(t *testing.T) {
	g := &Generator{}
	if _, err := g.EncodeImage([]byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}
