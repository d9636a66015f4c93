package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mealgen/internal/pipeline"
	"mealgen/pkg/types"
)

func newGenerateCmd(o *Options) *cobra.Command {
	var (
		count  int
		output string
	)
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Run one generation and write its events as NDJSON",
		Example: "  mealgen generate --count 3 > week.ndjson\n  mealgen generate -o week.ndjson",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 || count > pipeline.MaxRecipeCount {
				return fmt.Errorf("--count must be between 1 and %d", pipeline.MaxRecipeCount)
			}
			a, err := buildApp(o.cfg, o.log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := o.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, a.orch, count, out)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of recipes (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Write events to this file instead of stdout")
	return cmd
}

// runGenerate streams one run to w. A run that ended with an error event
// still wrote a complete stream, so its error is returned for the exit code.
func runGenerate(ctx context.Context, orch *pipeline.Orchestrator, count int, w io.Writer) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	var last types.EventType
	sink := pipeline.SinkFunc(func(ctx context.Context, ev types.Event) error {
		last = ev.Type
		return pipeline.WriterSink{W: bw, Flush: func() { _ = bw.Flush() }}.Emit(ctx, ev)
	})
	err := orch.RunBuffered(ctx, pipeline.RunOptions{RecipeCount: count}, sink)
	if err != nil && last == types.EventError {
		return fmt.Errorf("generation failed: %w", err)
	}
	return err
}
