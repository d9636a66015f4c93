package types

// GenerateRequest is the optional JSON body of POST /api/recipes/generate.
type GenerateRequest struct {
	// Number of recipes to plan. 0 or omitted uses the server default.
	// example: 7
	RecipeCount int `json:"recipe_count,omitempty" example:"7"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: too many generation runs in flight
	Error string `json:"error" example:"too many generation runs in flight"`
	// HTTP status code.
	// example: 429
	Code int `json:"code" example:"429"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Runs currently streaming.
	// example: 1
	RunsInFlight int `json:"runs_in_flight" example:"1"`
	// Maximum concurrent runs before backpressure triggers.
	// example: 4
	MaxConcurrentRuns int `json:"max_concurrent_runs" example:"4"`
	// Recipes planned per run when the request does not say.
	// example: 7
	DefaultRecipeCount int `json:"default_recipe_count" example:"7"`
	// Completion provider in use (openai|anthropic).
	// example: openai
	CompletionProvider string `json:"completion_provider" example:"openai"`
	// Whether image generation is enabled.
	// example: true
	ImagesEnabled bool `json:"images_enabled" example:"true"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
