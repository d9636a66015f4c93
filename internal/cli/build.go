package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mealgen/internal/config"
	"mealgen/internal/imagegen"
	"mealgen/internal/llm"
	"mealgen/internal/pipeline"
)

// app is the wired object graph behind both commands.
type app struct {
	orch    *pipeline.Orchestrator
	svc     *pipeline.Service
	closers []func() error
}

// Close releases pooled upstream connections.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// buildApp wires clients, stages and the orchestrator from cfg, which must
// already have defaults applied.
func buildApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	completer, err := llm.New(llm.Options{
		Provider:    llm.Provider(cfg.Completion.Provider),
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		APIKey:      cfg.Completion.APIKey,
		APIKeyEnv:   cfg.Completion.APIKeyEnv,
		Timeout:     seconds(cfg.Completion.TimeoutSeconds),
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		Logger:      log.With().Str("component", "llm").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}
	a := &app{closers: []func() error{completer.Close}}

	size, err := imagegen.ParseSize(cfg.Image.Size)
	if err != nil {
		return nil, err
	}
	gen := &pipeline.Generator{
		Completer: completer,
		Processor: imagegen.Processor{MaxDimension: cfg.Image.MaxDimension, Quality: cfg.Image.JPEGQuality},
		ImageSize: size,
		Logger:    log.With().Str("component", "stages").Logger(),
	}
	if !cfg.Image.Disabled {
		images := imagegen.New(imagegen.Options{
			BaseURL:   cfg.Image.BaseURL,
			Model:     cfg.Image.Model,
			APIKey:    cfg.Image.APIKey,
			APIKeyEnv: cfg.Image.APIKeyEnv,
			Timeout:   seconds(cfg.Image.TimeoutSeconds),
			Logger:    log.With().Str("component", "imagegen").Logger(),
		})
		gen.Images = images
		a.closers = append(a.closers, images.Close)
	}

	a.orch = pipeline.New(pipeline.Config{
		Stages:                 gen,
		RecipeCount:            cfg.Pipeline.RecipeCount,
		WaveTimeout:            seconds(cfg.Pipeline.WaveTimeoutSeconds),
		TaskTimeout:            seconds(cfg.Pipeline.TaskTimeoutSeconds),
		EventBuffer:            cfg.Pipeline.EventBuffer,
		ContinueOnGroceryError: cfg.Pipeline.ContinueOnGroceryError,
		Logger:                 log.With().Str("component", "pipeline").Logger(),
	})
	a.svc = pipeline.NewService(a.orch, pipeline.ServiceConfig{
		MaxConcurrentRuns:  cfg.Server.MaxConcurrentRuns,
		CompletionProvider: string(completer.Provider()),
		ImagesEnabled:      !cfg.Image.Disabled,
	})
	return a, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
