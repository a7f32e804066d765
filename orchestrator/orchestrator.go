// Package orchestrator coordinates the full provider sync sequence:
// snapshot creation, connection test, plugin sync, canonical merge, state
// diffing, and the single-transaction commit. Batch mode fans providers
// out over a bounded worker pool while keeping each provider serialized.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yairfalse/lasku/journal"
	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/storage"
	"github.com/yairfalse/lasku/telemetry"
	"github.com/yairfalse/lasku/types"
)

// Config wires an orchestrator. Store is required; journal and metrics are
// optional.
type Config struct {
	Store       *storage.Store
	Journal     *journal.Journal
	Metrics     *telemetry.Metrics
	Logger      *telemetry.Logger
	Concurrency int
	Now         func() time.Time
}

// Orchestrator runs provider syncs against shared storage.
type Orchestrator struct {
	store       *storage.Store
	journal     *journal.Journal
	metrics     *telemetry.Metrics
	logger      *telemetry.Logger
	concurrency int
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewLogger("orchestrator")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		store:       cfg.Store,
		journal:     cfg.Journal,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		now:         cfg.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// providerLock serializes syncs of the same provider. Different providers
// run concurrently.
func (o *Orchestrator) providerLock(providerID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[providerID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[providerID] = lock
	}
	return lock
}

// SyncProvider runs the full sequence for one provider. The snapshot
// always reaches a terminal status, even on failure.
func (o *Orchestrator) SyncProvider(ctx context.Context, spec ProviderSpec, trigger string) SyncReport {
	lock := o.providerLock(spec.ProviderID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := telemetry.Tracer.Start(ctx, "orchestrator.sync_provider")
	span.SetAttributes(attribute.String("provider_id", spec.ProviderID))
	defer span.End()

	snapshot := types.NewSnapshot(spec.ProviderID, spec.Plugin.ProviderType(), trigger)
	report := SyncReport{ProviderID: spec.ProviderID, SnapshotID: snapshot.ID}

	if err := o.store.CreateSnapshot(snapshot); err != nil {
		report.Status = types.SnapshotError
		report.Err = fmt.Errorf("create snapshot: %w", err)
		o.logger.LogStorageError(ctx, "create_snapshot", err)
		return report
	}
	o.logger.LogSyncStart(ctx, spec.ProviderID, snapshot.ID, trigger)
	o.journalEntry(journal.EntrySyncStarted, snapshot, nil, nil)

	if err := o.testConnection(ctx, spec, snapshot); err != nil {
		return o.failSync(ctx, &snapshot, report, err)
	}

	result, err := spec.Plugin.Sync(ctx)
	if err != nil {
		return o.failSync(ctx, &snapshot, report, err)
	}

	batch, err := o.mergeResult(spec.ProviderID, &snapshot, result)
	if err != nil {
		return o.failSync(ctx, &snapshot, report, err)
	}

	status := types.SnapshotSuccess
	if result.Partial || len(result.Errors) > 0 {
		status = types.SnapshotPartialSuccess
	}
	if err := snapshot.MarkCompleted(status, nil); err != nil {
		return o.failSync(ctx, &snapshot, report, err)
	}
	batch.Snapshot = snapshot

	if err := o.store.CommitSync(*batch); err != nil {
		// The stored snapshot is still running; rewind the in-memory
		// copy so failSync can transition it to error.
		snapshot.Status = types.SnapshotRunning
		return o.failSync(ctx, &snapshot, report, fmt.Errorf("commit: %w", err))
	}
	o.logger.LogCommit(ctx, spec.ProviderID, snapshot.ID,
		len(batch.Resources), len(batch.States), len(batch.Unrecognized))

	report.Status = status
	report.ResourcesSynced = len(batch.Resources)
	report.Created = snapshot.Created
	report.Updated = snapshot.Updated
	report.Unchanged = snapshot.Unchanged
	report.Deleted = snapshot.Deleted
	report.TotalCost = snapshot.TotalCost
	report.Warnings = result.Warnings
	report.Duration = snapshot.Duration

	o.journalEntry(journal.EntrySyncCompleted, snapshot, report, nil)
	o.recordMetrics(snapshot, result)
	o.logger.LogSyncComplete(ctx, spec.ProviderID, snapshot.ID, string(status),
		report.ResourcesSynced, report.TotalCost, float64(snapshot.Duration.Milliseconds()))
	return report
}

func (o *Orchestrator) testConnection(ctx context.Context, spec ProviderSpec, snapshot types.Snapshot) error {
	result, err := spec.Plugin.TestConnection(ctx)
	o.journalEntry(journal.EntryConnection, snapshot, result, err)
	if err != nil {
		return fmt.Errorf("connection test: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("connection test: %s", result.Message)
	}
	return nil
}

// mergeResult turns the plugin output into the canonical batch: merge each
// transient resource with its stored predecessor, diff into state rows,
// and accumulate snapshot counts and totals.
func (o *Orchestrator) mergeResult(providerID string, snapshot *types.Snapshot, result plugin.SyncResult) (*storage.SyncBatch, error) {
	batch := &storage.SyncBatch{}
	now := o.now().UTC()

	for _, pr := range result.Resources {
		key := types.ResourceKey{
			ProviderID:   providerID,
			ResourceID:   pr.ResourceID,
			ResourceType: pr.ResourceType,
		}
		prev, err := o.store.GetResource(key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key.String(), err)
		}

		canonical := pr.Canonical(providerID, prev, now)
		state := types.NewResourceState(snapshot.ID, prev, canonical)

		switch state.Action {
		case types.ActionCreated:
			snapshot.Created++
		case types.ActionUpdated:
			snapshot.Updated++
		default:
			snapshot.Unchanged++
		}
		snapshot.AddTotal(canonical.ServiceName, canonical.DailyCost)

		batch.Resources = append(batch.Resources, canonical)
		batch.States = append(batch.States, state)
		o.journalEntry(journal.EntryUpserted, *snapshot, state.Changes, nil)
	}

	for _, deactivated := range result.Deactivations {
		key := deactivated.Key()
		prev, err := o.store.GetResource(key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key.String(), err)
		}
		if prev == nil {
			// Deactivation of a resource storage never saw; keep the
			// plugin's view as both sides.
			prev = &deactivated
		}
		deactivated.LastSync = now

		snapshot.Deleted++
		batch.Resources = append(batch.Resources, deactivated)
		batch.States = append(batch.States, types.NewDeletedState(snapshot.ID, *prev, deactivated))
		o.journalEntry(journal.EntryDeactivated, *snapshot,
			map[string]string{"resource_id": deactivated.ResourceID, "reason": deactivated.Tags.DeactivationReason}, nil)
	}

	for _, u := range result.Unrecognized {
		u.SnapshotID = snapshot.ID
		batch.Unrecognized = append(batch.Unrecognized, u)
		o.journalEntry(journal.EntryUnrecognized, *snapshot, u, nil)
	}

	return batch, nil
}

// failSync transitions the snapshot to error, persists it, and finishes
// the report. The snapshot never stays running.
func (o *Orchestrator) failSync(ctx context.Context, snapshot *types.Snapshot, report SyncReport, syncErr error) SyncReport {
	if err := snapshot.MarkCompleted(types.SnapshotError, syncErr); err == nil {
		if updateErr := o.store.UpdateSnapshot(*snapshot); updateErr != nil {
			o.logger.LogStorageError(ctx, "update_snapshot", updateErr)
		}
	}

	report.Status = types.SnapshotError
	report.Err = syncErr
	report.Duration = snapshot.Duration

	o.journalEntry(journal.EntrySyncFailed, *snapshot, nil, syncErr)
	if o.metrics != nil {
		o.metrics.SyncsTotal.WithLabelValues(snapshot.ProviderID, string(types.SnapshotError)).Inc()
	}
	o.logger.LogSyncError(ctx, snapshot.ProviderID, snapshot.ID, syncErr)
	return report
}

// SyncAll syncs every provider over a bounded worker pool. Reports come
// back in spec order.
func (o *Orchestrator) SyncAll(ctx context.Context, specs []ProviderSpec, trigger string) []SyncReport {
	reports := make([]SyncReport, len(specs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.concurrency)
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec ProviderSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[i] = o.SyncProvider(ctx, spec, trigger)
		}(i, spec)
	}
	wg.Wait()
	return reports
}

func (o *Orchestrator) journalEntry(entryType journal.EntryType, snapshot types.Snapshot, data any, err error) {
	if o.journal == nil {
		return
	}
	ref := journal.Ref{ProviderID: snapshot.ProviderID, SnapshotID: snapshot.ID}
	var appendErr error
	if err != nil {
		appendErr = o.journal.AppendError(entryType, ref, data, err)
	} else {
		appendErr = o.journal.Append(entryType, ref, data)
	}
	if appendErr != nil {
		o.logger.Warn().Err(appendErr).Str("entry_type", string(entryType)).Msg("journal append failed")
	}
}

func (o *Orchestrator) recordMetrics(snapshot types.Snapshot, result plugin.SyncResult) {
	if o.metrics == nil {
		return
	}
	providerID := snapshot.ProviderID

	o.metrics.SyncsTotal.WithLabelValues(providerID, string(snapshot.Status)).Inc()
	o.metrics.SyncDuration.WithLabelValues(providerID).Observe(snapshot.Duration.Seconds())
	o.metrics.ResourcesSynced.WithLabelValues(providerID, string(types.ActionCreated)).Add(float64(snapshot.Created))
	o.metrics.ResourcesSynced.WithLabelValues(providerID, string(types.ActionUpdated)).Add(float64(snapshot.Updated))
	o.metrics.ResourcesSynced.WithLabelValues(providerID, string(types.ActionUnchanged)).Add(float64(snapshot.Unchanged))
	o.metrics.UnrecognizedTotal.WithLabelValues(providerID).Add(float64(len(result.Unrecognized)))
	o.metrics.ProviderDailyCost.WithLabelValues(providerID).Set(snapshot.TotalCost)

	for _, d := range result.Deactivations {
		o.metrics.DeactivationsTotal.WithLabelValues(providerID, d.Tags.DeactivationReason).Inc()
	}
	for _, w := range result.Warnings {
		if strings.HasPrefix(w, "validation_mismatch") {
			o.metrics.ValidationMismatches.WithLabelValues(providerID).Inc()
		}
	}
}
