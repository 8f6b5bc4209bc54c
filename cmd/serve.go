package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/metrics"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/server"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/watch"
)

var serveFlags struct {
	Addr     string
	Schedule bool
	DryRun   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rules API and the cron-triggered watch endpoint",
	Long: `Serve exposes the rule store and the watcher over HTTP:

  GET    /healthz
  GET    /metrics
  GET    /api/cpa-rules?account_id=
  POST   /api/cpa-rules?account_id=
  DELETE /api/cpa-rules?account_id=
  POST   /api/cpa-run?account_id=&since=&until=&dry_run=

When cron_secret (or CPA_CRON_SECRET) is set, /api/cpa-run requires it in the
x-cron-secret header or the secret query parameter. With --schedule the
watcher also ticks every configured account on watch_interval.

Logs are written to stdout as JSON.`,
	Example: `  arbdash serve --addr :8080
  CPA_CRON_SECRET=s3cret arbdash serve --schedule`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.RequireMeta(); err != nil {
			return err
		}
		if err := deps.RequireRules(cmd.Context()); err != nil {
			return err
		}

		level := slog.LevelInfo
		if deps.Config.Debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		w := watch.New(watch.Config{
			Interval:   deps.Config.WatchInterval,
			AccountIDs: deps.Config.AccountIDs,
			DryRun:     serveFlags.DryRun,
		}, deps.Rules, deps.Meta, metrics.NewWatchMetrics(reg))

		addr := deps.Config.ListenAddr
		if serveFlags.Addr != "" {
			addr = serveFlags.Addr
		}
		srv := &http.Server{
			Addr: addr,
			Handler: server.NewRouter(server.Options{
				Log:     logger,
				Rules:   deps.Rules,
				Watcher: w,
				Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
				Secret:  deps.Config.CronSecret,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveFlags.Schedule {
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			logger.Info("watcher scheduled",
				slog.Any("accounts", deps.Config.AccountIDs),
				slog.Duration("interval", deps.Config.WatchInterval),
			)
		}
		if deps.Config.CronSecret == "" {
			logger.Warn("cron secret not set; /api/cpa-run is unauthenticated")
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("starting server", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.Addr, "addr", "", "listen address (default: listen_addr from config, :8080)")
	f.BoolVar(&serveFlags.Schedule, "schedule", false, "also tick the configured accounts on watch_interval")
	f.BoolVar(&serveFlags.DryRun, "dry-run", false, "scheduled ticks evaluate without pausing")

	rootCmd.AddCommand(serveCmd)
}
