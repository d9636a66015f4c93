package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mealgen/internal/imagegen"
	"mealgen/internal/llm"
	"mealgen/pkg/types"
)

// Template is a recipe idea produced by the first stage; immutable once created.
type Template struct {
	ID                int
	Title             string
	Description       string
	VisualDescription string
}

// Details is the per-recipe detail payload produced by the second stage.
type Details struct {
	Ingredients  []types.Ingredient `json:"ingredients"`
	Instructions []string           `json:"instructions"`
}

// Stages are the generation steps the Orchestrator sequences.
type Stages interface {
	// Templates returns exactly n templates with ids 1..n.
	Templates(ctx context.Context, n int) ([]Template, error)
	// Details generates ingredients and instructions for one template.
	Details(ctx context.Context, t Template) (Details, error)
	// Image returns raw encoded image bytes, or nil when none could be produced.
	// It never fails.
	Image(ctx context.Context, t Template) []byte
	// EncodeImage turns raw image bytes into the transport form (base64 JPEG).
	EncodeImage(raw []byte) (string, error)
	// GroceryList consolidates the ingredients of the given recipes.
	GroceryList(ctx context.Context, recipes []types.Recipe) ([]types.GroceryItem, error)
}

// ImageClient is the text-to-image contract; see imagegen.Client.
type ImageClient interface {
	Generate(ctx context.Context, prompt string, size imagegen.Size) ([]byte, error)
}

// ImageProcessor re-encodes a generated image; see imagegen.Processor.
type ImageProcessor interface {
	Process(raw []byte) (string, error)
}

// Generator implements Stages over a completion client and an image client.
// Images may be nil, which disables image generation.
type Generator struct {
	Completer llm.Completer
	Images    ImageClient
	Processor ImageProcessor
	ImageSize imagegen.Size
	Logger    zerolog.Logger
}

type templateOut struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	VisualDescription string `json:"visual_description"`
}

func (g *Generator) Templates(ctx context.Context, n int) ([]Template, error) {
	var out []templateOut
	err := g.Completer.Complete(ctx, llm.Request{
		Op:     "templates",
		Prompt: templatesPrompt(n),
		Schema: templatesSchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) < n {
		return nil, llm.ErrUpstreamGeneration("templates", fmt.Sprintf("got %d recipes, want %d", len(out), n))
	}
	templates := make([]Template, 0, n)
	for i, o := range out[:n] {
		title := strings.TrimSpace(o.Title)
		if title == "" {
			return nil, llm.ErrUpstreamGeneration("templates", fmt.Sprintf("recipe %d has no title", i+1))
		}
		templates = append(templates, Template{
			ID:                i + 1,
			Title:             title,
			Description:       strings.TrimSpace(o.Description),
			VisualDescription: strings.TrimSpace(o.VisualDescription),
		})
	}
	return templates, nil
}

func (g *Generator) Details(ctx context.Context, t Template) (Details, error) {
	var d Details
	err := g.Completer.Complete(ctx, llm.Request{
		Op:     "details",
		Prompt: detailsPrompt(t),
		Schema: detailsSchema,
	}, &d)
	if err != nil {
		return Details{}, err
	}
	ingredients := d.Ingredients[:0]
	for _, in := range d.Ingredients {
		if in.Name = strings.TrimSpace(in.Name); in.Name != "" {
			ingredients = append(ingredients, in)
		}
	}
	d.Ingredients = ingredients
	if len(d.Ingredients) == 0 || len(d.Instructions) == 0 {
		return Details{}, llm.ErrUpstreamGeneration("details", "missing ingredients or instructions for "+t.Title)
	}
	return d, nil
}

func (g *Generator) Image(ctx context.Context, t Template) []byte {
	if g.Images == nil {
		return nil
	}
	size := g.ImageSize
	if size.Width == 0 || size.Height == 0 {
		size = imagegen.DefaultSize
	}
	raw, err := g.Images.Generate(ctx, imagePrompt(t), size)
	if err != nil {
		if ctx.Err() == nil {
			g.Logger.Warn().Err(err).Int("recipe_id", t.ID).Str("title", t.Title).Msg("image transport failure")
		}
		return nil
	}
	return raw
}

func (g *Generator) EncodeImage(raw []byte) (string, error) {
	p := g.Processor
	if p == nil {
		p = imagegen.Processor{}
	}
	return p.Process(raw)
}

func (g *Generator) GroceryList(ctx context.Context, recipes []types.Recipe) ([]types.GroceryItem, error) {
	if len(recipes) == 0 {
		return []types.GroceryItem{}, nil
	}
	var out []types.GroceryItem
	err := g.Completer.Complete(ctx, llm.Request{
		Op:     "grocery_list",
		Prompt: groceryPrompt(recipes),
		Schema: grocerySchema,
	}, &out)
	if err != nil {
		return nil, err
	}
	items := make([]types.GroceryItem, 0, len(out))
	for _, it := range out {
		if it.Name = strings.TrimSpace(it.Name); it.Name != "" {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, llm.ErrUpstreamGeneration("grocery_list", "empty grocery list")
	}
	return items, nil
}
