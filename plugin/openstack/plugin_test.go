package openstack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/types"
)

type stubIdentity struct {
	err    error
	issued int
	ttl    time.Duration
}

func (s *stubIdentity) IssueToken(_ context.Context) (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	s.issued++
	ttl := s.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return Token{Value: "tok", ExpiresAt: time.Now().Add(ttl)}, nil
}

type stubBilling struct {
	name  string
	usage []UsageRecord
	rate  float64
	err   error
	calls int
}

func (s *stubBilling) Name() string { return s.name }

func (s *stubBilling) UsageRecords(_ context.Context, token string, _, _ time.Time) ([]UsageRecord, error) {
	s.calls++
	if token == "" {
		return nil, errors.New("missing token")
	}
	return s.usage, s.err
}

func (s *stubBilling) AccountDailyRate(_ context.Context, _ string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.rate, nil
}

type stubCompute struct {
	servers map[string]*Server
	metrics map[string]map[string]float64
}

func (s *stubCompute) GetServer(_ context.Context, _, project, _, id string) (*Server, error) {
	srv := s.servers[id]
	if srv == nil || srv.Project != project {
		return nil, nil
	}
	return srv, nil
}

func (s *stubCompute) LocateServer(_ context.Context, _, id string) (*Server, error) {
	return s.servers[id], nil
}

func (s *stubCompute) ServerMetrics(_ context.Context, _, serverID string) (map[string]float64, error) {
	return s.metrics[serverID], nil
}

func serverUsage(id, name string, daily float64) UsageRecord {
	return UsageRecord{
		ObjectID: id, ObjectName: name, ObjectType: "server",
		Project: "proj-1", Region: "fi-hel1",
		MetricID: "server_core", Amount: daily, Period: "daily",
	}
}

func newTestPlugin(clients Clients) *Plugin {
	return New(plugin.Config{
		ProviderID:  "os-test",
		Credentials: plugin.Credentials{"username": "u", "api_key": "k"},
	}, clients)
}

func TestSync_EnrichedServer(t *testing.T) {
	clients := Clients{
		Identity: &stubIdentity{},
		Billing:  []BillingAPI{&stubBilling{name: "main", usage: []UsageRecord{serverUsage("srv-1", "web-1", 5.0)}, rate: 5.0}},
		Compute: &stubCompute{
			servers: map[string]*Server{"srv-1": {
				ID: "srv-1", Name: "web-1", Status: "started", Project: "proj-1",
				Region: "fi-hel1", Flavor: "2xCPU-4GB", VCPUs: 2, RAMMB: 4096,
			}},
			metrics: map[string]map[string]float64{"srv-1": {"cpu_util": 34.0}},
		},
	}

	res, err := newTestPlugin(clients).Sync(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	require.Len(t, res.Resources, 1)

	srv := res.Resources[0]
	assert.Equal(t, "server", srv.ResourceType)
	assert.Equal(t, types.StatusRunning, srv.Status, "provider status vocabulary mapped")
	assert.Equal(t, "2xCPU-4GB", srv.Tags.GetExtra("flavor"))
	assert.InDelta(t, 34.0, srv.Tags.CPUUtilPct, 1e-9)
	assert.InDelta(t, 5.0, res.TotalCost, 1e-9)
	assert.Equal(t, 1, res.ResourcesSynced)
}

func TestSync_BillingEndpointFallback(t *testing.T) {
	broken := &stubBilling{name: "mirror-a", err: errors.New("connection reset")}
	healthy := &stubBilling{name: "mirror-b", usage: []UsageRecord{serverUsage("srv-1", "web-1", 2.0)}, rate: 2.0}
	clients := Clients{
		Identity: &stubIdentity{},
		Billing:  []BillingAPI{broken, healthy},
		Compute: &stubCompute{servers: map[string]*Server{
			"srv-1": {ID: "srv-1", Name: "web-1", Status: "running", Project: "proj-1"},
		}},
	}

	res, err := newTestPlugin(clients).Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, broken.calls, "failed mirror tried exactly once")
	assert.Equal(t, 1, healthy.calls)
}

func TestSync_AllBillingEndpointsDownIsFatal(t *testing.T) {
	clients := Clients{
		Identity: &stubIdentity{},
		Billing: []BillingAPI{
			&stubBilling{name: "a", err: errors.New("timeout")},
			&stubBilling{name: "b", err: errors.New("timeout")},
		},
		Compute: &stubCompute{},
	}

	res, err := newTestPlugin(clients).Sync(context.Background())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ErrorContains(t, err, "billing pull")
}

func TestSync_IdentityDownRunsBillingOnly(t *testing.T) {
	clients := Clients{
		Identity: &stubIdentity{err: errors.New("401")},
		Billing:  []BillingAPI{&stubBilling{name: "main", usage: []UsageRecord{serverUsage("srv-1", "web-1", 3.0)}, rate: 3.0}},
		Compute:  &stubCompute{},
	}

	res, err := newTestPlugin(clients).Sync(context.Background())
	// Billing needs the same token, so a dead identity API kills the
	// whole sync, not just enrichment.
	require.Error(t, err)
	assert.False(t, res.Success)
}

func TestSync_DeactivatesFromHistory(t *testing.T) {
	history := &stubHistory{active: []types.Resource{{
		ProviderID: "os-test", ResourceID: "srv-old", ResourceType: "server",
		Name: "retired", IsActive: true,
	}}}

	clients := Clients{
		Identity: &stubIdentity{},
		Billing:  []BillingAPI{&stubBilling{name: "main", usage: []UsageRecord{serverUsage("srv-1", "web-1", 2.0)}, rate: 2.0}},
		Compute: &stubCompute{servers: map[string]*Server{
			"srv-1": {ID: "srv-1", Name: "web-1", Status: "running", Project: "proj-1"},
		}},
	}

	p := New(plugin.Config{
		ProviderID:  "os-test",
		Credentials: plugin.Credentials{"username": "u", "api_key": "k"},
		History:     history,
	}, clients)

	res, err := p.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Deactivations, 1)
	assert.Equal(t, "srv-old", res.Deactivations[0].ResourceID)
	assert.False(t, res.Deactivations[0].IsActive)
	assert.Equal(t, types.ReasonNoCurrentBilling, res.Deactivations[0].Tags.DeactivationReason)
}

type stubHistory struct {
	active []types.Resource
}

func (s *stubHistory) ActiveResources(_ string) ([]types.Resource, error) {
	return s.active, nil
}

func TestTokenCache_ReusesUntilExpiry(t *testing.T) {
	identity := &stubIdentity{ttl: time.Hour}
	cache := newTokenCache(identity)

	for i := 0; i < 3; i++ {
		tok, err := cache.get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", tok)
	}
	assert.Equal(t, 1, identity.issued, "valid token must be reused")
}

func TestTokenCache_RefreshesNearExpiry(t *testing.T) {
	identity := &stubIdentity{ttl: 5 * time.Second} // inside the slack window
	cache := newTokenCache(identity)

	_, err := cache.get(context.Background())
	require.NoError(t, err)
	_, err = cache.get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, identity.issued)
}

func TestTestConnection(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		clients := Clients{
			Identity: &stubIdentity{},
			Billing:  []BillingAPI{&stubBilling{name: "main", rate: 10.0}},
			Compute:  &stubCompute{},
		}
		result, err := newTestPlugin(clients).TestConnection(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.BillingReachable)
		assert.True(t, result.InventoryReachable)
	})

	t.Run("bad credentials", func(t *testing.T) {
		clients := Clients{
			Identity: &stubIdentity{err: errors.New("401")},
			Billing:  []BillingAPI{&stubBilling{name: "main"}},
			Compute:  &stubCompute{},
		}
		result, err := newTestPlugin(clients).TestConnection(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "identity")
	})
}

func TestValidateCredentials(t *testing.T) {
	p := newTestPlugin(Clients{Identity: &stubIdentity{}})
	assert.True(t, p.ValidateCredentials(plugin.Credentials{"username": "u", "api_key": "k"}))
	assert.False(t, p.ValidateCredentials(plugin.Credentials{"username": "u"}))
}
