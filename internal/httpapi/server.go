package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mealgen/internal/pipeline"
	"mealgen/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	// Generate runs one pipeline into sink. Errors returned before the first
	// event are reported as JSON errors; later ones travel in the stream.
	Generate(ctx context.Context, opts pipeline.RunOptions, sink pipeline.Sink) error
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(MetricsMiddleware)
	if c := corsMiddleware(); c != nil {
		r.Use(c)
	}
	// Compression for JSON endpoints; event streams are not in the type list
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc}
	r.Get("/api/recipes/generate", h.generateSSE)
	r.Post("/api/recipes/generate", h.generateNDJSON)
	r.Get("/status", h.status)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// status godoc
// @Summary      Service status
// @Tags         service
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.svc.Status()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// generateSSE godoc
// @Summary      Generate a meal plan (Server-Sent Events)
// @Description  Streams snapshot events as `data: <json>` frames: templates, updates, grocery_list, then complete or error.
// @Tags         recipes
// @Produce      text/event-stream
// @Param        count  query     int  false  "number of recipes (default from config)"
// @Success      200    {object}  types.Event
// @Failure      400    {object}  types.ErrorResponse
// @Failure      429    {object}  types.ErrorResponse
// @Router       /api/recipes/generate [get]
func (h *handlers) generateSSE(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "count must be an integer")
			return
		}
		req.RecipeCount = n
	}
	h.stream(w, r, req, "sse", func(w io.Writer, flush func()) pipeline.Sink {
		return sseSink{w: w, flush: flush}
	})
}

// generateNDJSON godoc
// @Summary      Generate a meal plan (NDJSON)
// @Description  Streams one JSON event per line: templates, updates, grocery_list, then complete or error.
// @Tags         recipes
// @Accept       json
// @Produce      application/x-ndjson
// @Param        request  body      types.GenerateRequest  false  "generation options"
// @Success      200      {object}  types.Event
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Router       /api/recipes/generate [post]
func (h *handlers) generateNDJSON(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.stream(w, r, req, "ndjson", func(w io.Writer, flush func()) pipeline.Sink {
		return pipeline.WriterSink{W: w, Flush: flush}
	})
}

// stream runs one generation with the transport built by newSink. Headers are
// committed with the first event, so a refusal can still answer with JSON.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request, req types.GenerateRequest, transport string, newSink func(io.Writer, func()) pipeline.Sink) {
	if req.RecipeCount < 0 || req.RecipeCount > pipeline.MaxRecipeCount {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("recipe_count must be between 1 and %d", pipeline.MaxRecipeCount))
		return
	}
	runID := uuid.NewString()
	w.Header().Set("X-Run-ID", runID)
	logs := newStreamLog(r, runID, transport)
	logs.begin(req.RecipeCount)

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	started := &startSink{next: newSink(w, flush), w: w, transport: transport}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := streamContext(r.Context())
	defer cancel()
	err := h.svc.Generate(ctx, pipeline.RunOptions{RunID: runID, RecipeCount: req.RecipeCount}, logs.traced(started))
	switch {
	case err == nil:
		logs.end(http.StatusOK, nil)
	case started.started:
		// the stream already carried the terminal event or the client left
		logs.end(http.StatusOK, err)
	case clientGone(r.Context()):
		logs.end(499, err)
	default:
		status := statusFor(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("max_concurrent_runs")
		}
		writeJSONError(w, status, err.Error())
		logs.end(status, err)
	}
}

// startSink commits stream headers on the first event and counts events.
type startSink struct {
	next      pipeline.Sink
	w         http.ResponseWriter
	transport string
	started   bool
}

func (s *startSink) Emit(ctx context.Context, ev types.Event) error {
	if !s.started {
		s.started = true
		hdr := s.w.Header()
		if s.transport == "sse" {
			hdr.Set("Content-Type", "text/event-stream")
			hdr.Set("Cache-Control", "no-cache")
			hdr.Set("Connection", "keep-alive")
			hdr.Set("X-Accel-Buffering", "no")
		} else {
			hdr.Set("Content-Type", "application/x-ndjson")
		}
		s.w.WriteHeader(http.StatusOK)
	}
	if err := s.next.Emit(ctx, ev); err != nil {
		return err
	}
	streamEventsTotal.WithLabelValues(s.transport, string(ev.Type)).Inc()
	return nil
}

// sseSink writes each event as one Server-Sent Events data frame.
type sseSink struct {
	w     io.Writer
	flush func()
}

func (s sseSink) Emit(ctx context.Context, ev types.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}
