package httpapi

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mealgen/internal/pipeline"
	"mealgen/pkg/types"
)

// zlog is the structured logger used by the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from MEALGEN_STREAM_LOG.
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("MEALGEN_STREAM_LOG"); ok {
		return parseLevel(v)
	}
	return LevelInfo
}()

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// streamLog carries the per-request fields of one generation stream.
type streamLog struct {
	lvl   LogLevel
	l     zerolog.Logger
	start time.Time
}

func newStreamLog(r *http.Request, runID, transport string) streamLog {
	c := zlog.With().Str("path", r.URL.Path).Str("run_id", runID).Str("transport", transport)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		c = c.Str("request_id", rid)
	}
	return streamLog{lvl: requestLogLevel(r), l: c.Logger(), start: time.Now()}
}

func (s streamLog) begin(count int) {
	if s.lvl >= LevelInfo {
		s.l.Info().Int("recipe_count", count).Msg("stream start")
	}
}

func (s streamLog) end(status int, err error) {
	if s.lvl < LevelError || (s.lvl < LevelInfo && err == nil) {
		return
	}
	ev := s.l.Info()
	if err != nil {
		ev = s.l.Warn().Err(err)
	}
	ev.Int("status", status).Dur("dur", time.Since(s.start)).Msg("stream end")
}

// loggingSink traces every event written to the client at debug level.
type loggingSink struct {
	next pipeline.Sink
	l    zerolog.Logger
}

func (s loggingSink) Emit(ctx context.Context, ev types.Event) error {
	err := s.next.Emit(ctx, ev)
	s.l.Debug().Str("event", string(ev.Type)).Int("recipes", len(ev.Recipes)).
		Int("grocery_items", len(ev.GroceryList)).AnErr("write_err", err).Msg("stream>")
	return err
}

// traced wraps sink with event tracing when the request asked for debug logs.
func (s streamLog) traced(sink pipeline.Sink) pipeline.Sink {
	if s.lvl < LevelDebug {
		return sink
	}
	return loggingSink{next: sink, l: s.l}
}
