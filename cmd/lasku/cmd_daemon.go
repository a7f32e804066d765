package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/lasku/journal"
	"github.com/yairfalse/lasku/telemetry"
)

var metricsAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync on an interval and serve metrics",
	Long: `Run sync cycles on the configured interval, serve Prometheus
metrics, and export traces when an OTEL endpoint is set. Journal files
older than the retention period are removed once a day.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics listen address")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName:    "lasku",
		ServiceVersion: version,
		Environment:    a.cfg.Telemetry.Environment,
		OTELEndpoint:   a.cfg.Telemetry.OTELEndpoint,
		Insecure:       a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	g.Add(func() error {
		a.logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
		return srv.ListenAndServe()
	}, func(error) {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	})

	loopCtx, loopCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return a.syncLoop(loopCtx)
	}, func(error) {
		loopCancel()
	})

	err = g.Run()
	if err != nil && !isGracefulExit(err) {
		return err
	}
	a.logger.Info().Msg("shutting down")
	return nil
}

// syncLoop runs one cycle immediately, then on every interval tick.
// Journal retention runs on its own daily tick.
func (a *app) syncLoop(ctx context.Context) error {
	a.logger.Info().
		Dur("interval", a.cfg.Sync.Interval).
		Int("providers", len(a.specs)).
		Msg("daemon starting")

	a.runCycle(ctx)

	ticker := time.NewTicker(a.cfg.Sync.Interval)
	defer ticker.Stop()
	retention := time.NewTicker(24 * time.Hour)
	defer retention.Stop()

	for {
		select {
		case <-ticker.C:
			a.runCycle(ctx)
		case <-retention.C:
			a.cleanupJournal()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *app) runCycle(ctx context.Context) {
	reports := a.orch.SyncAll(ctx, a.specs, "scheduled")
	for _, r := range reports {
		if r.Err != nil {
			a.logger.Error().
				Err(r.Err).
				Str("provider_id", r.ProviderID).
				Msg("provider sync failed")
		}
	}
}

func (a *app) cleanupJournal() {
	cfg := journal.DefaultConfig()
	if a.cfg.Storage.JournalRetentionDays > 0 {
		cfg.RetentionDays = a.cfg.Storage.JournalRetentionDays
	}
	if err := journal.Cleanup(a.cfg.Storage.JournalDir, cfg); err != nil {
		a.logger.Warn().Err(err).Msg("journal cleanup failed")
	}
}

func isGracefulExit(err error) bool {
	var sig run.SignalError
	if errors.As(err, &sig) {
		fmt.Fprintf(os.Stderr, "received %s\n", sig.Signal)
		return true
	}
	return errors.Is(err, context.Canceled)
}
