//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// swaggerTemplate is the minimal document served until `swag init` output
// replaces it; the handlers carry the full annotations.
const swaggerTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "version": "{{.Version}}", "description": "{{escape .Description}}"},
  "basePath": "{{.BasePath}}",
  "paths": {
    "/api/recipes/generate": {
      "get": {"summary": "Generate a meal plan (Server-Sent Events)", "produces": ["text/event-stream"]},
      "post": {"summary": "Generate a meal plan (NDJSON)", "produces": ["application/x-ndjson"]}
    },
    "/status": {"get": {"summary": "Service status", "produces": ["application/json"]}}
  }
}`

func init() {
	swag.Register(swag.Name, &swag.Spec{
		Version:          "1.0",
		BasePath:         "/",
		Title:            "mealgen API",
		Description:      "Weekly meal plan generation with progressive streaming.",
		InfoInstanceName: "swagger",
		SwaggerTemplate:  swaggerTemplate,
		LeftDelim:        "{{",
		RightDelim:       "}}",
	})
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
