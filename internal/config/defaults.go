package config

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults returns c with every unspecified field filled in.
func (c Config) Defaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = "openai"
	}
	if c.Completion.TimeoutSeconds <= 0 {
		c.Completion.TimeoutSeconds = 60
	}
	if c.Image.Size == "" {
		c.Image.Size = "1024x1024"
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = 120
	}
	if c.Image.MaxDimension <= 0 {
		c.Image.MaxDimension = 512
	}
	if c.Image.JPEGQuality <= 0 {
		c.Image.JPEGQuality = 85
	}
	if c.Pipeline.RecipeCount <= 0 {
		c.Pipeline.RecipeCount = 7
	}
	if c.Pipeline.WaveTimeoutSeconds <= 0 {
		c.Pipeline.WaveTimeoutSeconds = 30
	}
	if c.Pipeline.TaskTimeoutSeconds <= 0 {
		c.Pipeline.TaskTimeoutSeconds = 5
	}
	if c.Pipeline.EventBuffer <= 0 {
		c.Pipeline.EventBuffer = 16
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		c.Server.MaxConcurrentRuns = 4
	}
	if c.Server.StreamTimeoutSeconds == 0 {
		c.Server.StreamTimeoutSeconds = 300
	}
	return c
}

// Validate reports configuration values that can never work.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Completion.Provider) {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("completion.provider: unknown provider %q", c.Completion.Provider))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error", "off":
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if t := c.Completion.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("completion.temperature: %v out of range [0,2]", *t))
	}
	if c.Image.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("image.jpeg_quality: %d out of range [1,100]", c.Image.JPEGQuality))
	}
	if c.Pipeline.RecipeCount > 14 {
		errs = append(errs, fmt.Errorf("pipeline.recipe_count: %d exceeds 14", c.Pipeline.RecipeCount))
	}
	if c.Pipeline.RecipeCount < 0 || c.Pipeline.WaveTimeoutSeconds < 0 || c.Pipeline.TaskTimeoutSeconds < 0 {
		errs = append(errs, errors.New("pipeline: negative values are not allowed"))
	}
	return errors.Join(errs...)
}
