package main

import (
	"fmt"

	"github.com/yairfalse/lasku/config"
	"github.com/yairfalse/lasku/journal"
	"github.com/yairfalse/lasku/orchestrator"
	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/reconcile"
	"github.com/yairfalse/lasku/storage"
	"github.com/yairfalse/lasku/telemetry"

	// Plugins register themselves with the factory registry.
	_ "github.com/yairfalse/lasku/plugin/aws"
	_ "github.com/yairfalse/lasku/plugin/openstack"
)

// app bundles the wired process: config, storage, journal, metrics, and
// the orchestrator with one plugin instance per enabled provider.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	journal *journal.Journal
	metrics *telemetry.Metrics
	orch    *orchestrator.Orchestrator
	specs   []orchestrator.ProviderSpec
	logger  *telemetry.Logger
}

func buildApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	jrn, err := journal.Open(cfg.Storage.JournalDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	logger := telemetry.NewLogger("lasku")
	metrics := telemetry.NewMetrics()

	a := &app{
		cfg:     cfg,
		store:   store,
		journal: jrn,
		metrics: metrics,
		logger:  logger,
		orch: orchestrator.New(orchestrator.Config{
			Store:       store,
			Journal:     jrn,
			Metrics:     metrics,
			Logger:      logger,
			Concurrency: cfg.Sync.Concurrency,
		}),
	}

	if err := a.buildSpecs(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildSpecs() error {
	policy := reconcile.Options{
		Window:      a.cfg.Sync.Window,
		Tolerance:   a.cfg.Sync.Tolerance,
		OrphanAge:   a.cfg.Sync.OrphanAge,
		CallTimeout: a.cfg.Sync.CallTimeout,
	}

	for _, p := range a.cfg.Providers {
		if !p.IsEnabled() {
			a.logger.Info().Str("provider_id", p.ID).Msg("provider disabled, skipping")
			continue
		}
		instance, err := plugin.Create(p.Type, plugin.Config{
			ProviderID:  p.ID,
			Region:      p.Region,
			Credentials: p.Credentials,
			History:     a.store,
			Policy:      policy,
			Logger:      a.logger.Logger,
		})
		if err != nil {
			return fmt.Errorf("provider %s: %w", p.ID, err)
		}
		a.specs = append(a.specs, orchestrator.ProviderSpec{
			ProviderID: p.ID,
			Plugin:     instance,
		})
	}

	if len(a.specs) == 0 {
		return fmt.Errorf("no enabled providers in config")
	}
	return nil
}

func (a *app) close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
