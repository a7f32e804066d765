package openstack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/reconcile"
)

// billingFeed adapts the provider's usage ledger to the engine's
// BillingFeed. Candidate endpoints are walked in order; an auth failure is
// permanent, anything else moves on to the next mirror.
type billingFeed struct {
	endpoints []BillingAPI
	tokens    *tokenCache
	logger    zerolog.Logger
}

func (f *billingFeed) Pull(ctx context.Context, q billing.Query) ([]billing.Record, error) {
	token, err := f.tokens.get(ctx)
	if err != nil {
		return nil, err
	}

	attempts := make([]reconcile.Attempt[[]UsageRecord], 0, len(f.endpoints))
	for _, ep := range f.endpoints {
		ep := ep
		attempts = append(attempts, reconcile.Attempt[[]UsageRecord]{
			Name: ep.Name(),
			Run: func(ctx context.Context) ([]UsageRecord, error) {
				return ep.UsageRecords(ctx, token, q.Start, q.End)
			},
		})
	}

	usage, err := reconcile.TryOrdered(ctx, attempts, classifyEndpoint)
	if err != nil {
		return nil, fmt.Errorf("usage ledger: %w", err)
	}

	records := make([]billing.Record, 0, len(usage))
	for _, u := range usage {
		records = append(records, billing.Record{
			Object: billing.Object{
				ID:      u.ObjectID,
				Name:    u.ObjectName,
				Type:    u.ObjectType,
				Project: u.Project,
				Region:  u.Region,
			},
			Metric:     billing.Metric{ID: u.MetricID},
			Value:      u.Amount,
			Period:     u.Period,
			Frequency:  u.Frequency,
			Attributes: u.Attributes,
		})
	}
	return records, nil
}

func (f *billingFeed) AccountDailyRate(ctx context.Context) (float64, error) {
	token, err := f.tokens.get(ctx)
	if err != nil {
		return 0, err
	}

	attempts := make([]reconcile.Attempt[float64], 0, len(f.endpoints))
	for _, ep := range f.endpoints {
		ep := ep
		attempts = append(attempts, reconcile.Attempt[float64]{
			Name: ep.Name(),
			Run: func(ctx context.Context) (float64, error) {
				return ep.AccountDailyRate(ctx, token)
			},
		})
	}
	return reconcile.TryOrdered(ctx, attempts, classifyEndpoint)
}

// classifyEndpoint treats every non-auth failure as worth trying the next
// mirror. The endpoint list is the retry budget.
func classifyEndpoint(err error) reconcile.Outcome {
	switch {
	case err == nil:
		return reconcile.OutcomeSuccess
	case reconcile.IsAuth(err):
		return reconcile.OutcomePermanent
	default:
		return reconcile.OutcomeRetryable
	}
}

// inventoryFeed adapts the compute API to the engine's InventoryFeed.
type inventoryFeed struct {
	compute ComputeAPI
	tokens  *tokenCache
	logger  zerolog.Logger
}

func (f *inventoryFeed) Probe(ctx context.Context) error {
	_, err := f.tokens.get(ctx)
	return err
}

func (f *inventoryFeed) FindServer(ctx context.Context, hint reconcile.LookupHint) (*reconcile.ServerDetail, error) {
	token, err := f.tokens.get(ctx)
	if err != nil {
		return nil, err
	}

	var srv *Server
	if hint.Exhaustive {
		srv, err = f.compute.LocateServer(ctx, token, hint.ObjectID)
	} else {
		srv, err = f.compute.GetServer(ctx, token, hint.Project, hint.Region, hint.ObjectID)
	}
	if err != nil {
		return nil, &reconcile.TransientError{Op: "find server", Err: err}
	}
	if srv == nil {
		return nil, nil
	}
	return serverDetail(srv), nil
}

func (f *inventoryFeed) ServerStats(ctx context.Context, serverID string) (map[string]float64, error) {
	token, err := f.tokens.get(ctx)
	if err != nil {
		return nil, err
	}
	return f.compute.ServerMetrics(ctx, token, serverID)
}

func serverDetail(srv *Server) *reconcile.ServerDetail {
	d := &reconcile.ServerDetail{
		ID:         srv.ID,
		Name:       srv.Name,
		Status:     srv.Status,
		Project:    srv.Project,
		Region:     srv.Region,
		FlavorName: srv.Flavor,
		VCPUs:      srv.VCPUs,
		RAMMB:      srv.RAMMB,
		PublicIP:   srv.PublicIP,
		Raw:        srv.Raw,
	}
	for _, att := range srv.Volumes {
		d.Attachments = append(d.Attachments, reconcile.VolumeAttachment{
			VolumeID: att.VolumeID,
			Device:   att.Device,
		})
	}
	return d
}
