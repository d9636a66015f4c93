package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mealgen/internal/httpapi"
	"mealgen/internal/pipeline"
)

func newServeCmd(o *Options) *cobra.Command {
	var (
		addr        string
		maxRuns     int
		cors        bool
		corsOrigins []string
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP service",
		Example: "  mealgen serve --addr :8080\n  mealgen serve --cors --cors-origin http://localhost:5173",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := o.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("max-concurrent-runs") {
				cfg.Server.MaxConcurrentRuns = maxRuns
			}
			if cmd.Flags().Changed("cors") {
				cfg.Server.CORSEnabled = cors
			}
			if len(corsOrigins) > 0 {
				cfg.Server.CORSOrigins = corsOrigins
			}
			cfg = cfg.Defaults()

			a, err := buildApp(cfg, o.log)
			if err != nil {
				return err
			}
			defer a.Close()

			httpapi.SetLogger(o.log.With().Str("component", "http").Logger())
			httpapi.SetStreamTimeoutSeconds(int64(cfg.Server.StreamTimeoutSeconds))
			httpapi.SetCORSOptions(cfg.Server.CORSEnabled, cfg.Server.CORSOrigins, nil, nil)

			baseCtx, cancelBase := context.WithCancelCause(context.Background())
			defer cancelBase(nil)
			httpapi.SetBaseContext(baseCtx)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(a.svc),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return baseCtx },
			}

			errCh := make(chan error, 1)
			go func() {
				o.log.Info().Str("addr", cfg.Addr).Str("provider", cfg.Completion.Provider).
					Bool("images", !cfg.Image.Disabled).Int("max_concurrent_runs", cfg.Server.MaxConcurrentRuns).
					Msg("mealgen listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(stop)
			select {
			case err, ok := <-errCh:
				if ok {
					return err
				}
				return nil
			case sig := <-stop:
				o.log.Info().Str("signal", sig.String()).Msg("shutting down")
			}
			// end open streams first; Shutdown waits for their handlers
			cancelBase(pipeline.ErrShuttingDown)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				o.log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address, e.g. :8080")
	cmd.Flags().IntVar(&maxRuns, "max-concurrent-runs", 4, "Generation runs allowed in flight; excess requests get 429")
	cmd.Flags().BoolVar(&cors, "cors", false, "Enable CORS for browser EventSource clients")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable)")
	return cmd
}
