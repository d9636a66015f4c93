// Package pipeline drives one meal-plan generation run: recipe templates,
// per-recipe detail and image sub-tasks, the consolidated grocery list, and
// the ordered stream of snapshot events a client renders incrementally.
// It is structured into small files by concern:
//
//   - orchestrator.go: Orchestrator, Run/Stream, the stage sequence and wave loop.
//   - state.go: per-run state (records, pending sets, task correlation map, merges).
//   - stages.go: Stages interface and the Generator implementation over llm/imagegen.
//   - prompts.go: prompt text and JSON schemas sent to the completion model.
//   - sink.go: emission sinks (bounded channel, NDJSON writer, func, memory).
//   - config.go: Config and package defaults; New applies defaults.
//   - service.go: admission control around Run for the HTTP layer.
//   - errors.go: error values and predicates.
//   - events.go, eventpub_memory.go: lifecycle events for observers and tests.
//   - metrics.go: Prometheus collectors.
//
// Concurrency model: sub-tasks run on their own goroutines and report exactly
// one result each over a buffered channel. Only the run's control goroutine
// reads that channel and mutates run state, so merges never interleave and
// the state needs no lock.
package pipeline
