package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/tui"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the polling loop",
	Long: `Starts the engine, polls the provider on the configured interval and
exposes the JSON API (with a server-sent event stream at /events).
Metrics are served at /metrics, or on --metrics-addr when set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		noPoll, _ := cmd.Flags().GetBool("no-poll")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout(), strings.TrimSpace(parley.Version))
		}

		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		metrics := observability.Handler(rt.Registry)
		if cfg.Metrics.Addr == "" {
			opts = append(opts, httpAdapter.WithMetrics(metrics))
		}
		handler, err := httpAdapter.NewHandler(rt.Engine, opts...)
		if err != nil {
			return err
		}

		servers := []*http.Server{{Addr: cfg.HTTP.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}}
		if cfg.Metrics.Addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics)
			servers = append(servers, &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
		}

		// Channel to listen for errors coming from the listeners.
		serverErrors := make(chan error, len(servers)+1)
		for _, srv := range servers {
			go func(srv *http.Server) {
				logger.Info("Listening", "address", srv.Addr)
				serverErrors <- srv.ListenAndServe()
			}(srv)
		}

		runCtx, stopRun := context.WithCancel(ctx)
		defer stopRun()
		if !noPoll {
			go func() {
				if err := rt.Engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					serverErrors <- fmt.Errorf("poll loop: %w", err)
				}
			}()
		}

		var runErr error
		select {
		case runErr = <-serverErrors:
		case <-ctx.Done():
			if sc, ok := ctx.(interface{ Signal() os.Signal }); ok && sc.Signal() != nil {
				logger.Info("Shutdown signal received", "signal", sc.Signal().String())
			}
		}
		stopRun()

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "address", srv.Addr, "err", err)
				_ = srv.Close()
			}
		}
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			return runErr
		}
		logger.Info("Parley server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address (default :8080)")
	serveCmd.Flags().String("metrics-addr", "", "Separate listen address for /metrics")
	serveCmd.Flags().Duration("interval", 0, "Poll interval (default 30s)")
	serveCmd.Flags().Bool("no-poll", false, "Serve the API without polling the provider")
}
