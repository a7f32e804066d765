// Package openstack is the reference plugin for an OpenStack-flavored
// public cloud that exposes a real billing ledger. The provider's API
// clients are injected behind small interfaces; the plugin owns token
// caching, candidate-endpoint iteration, and the translation into
// canonical billing and inventory feeds.
package openstack

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yairfalse/lasku/reconcile"
)

// Token is a short-lived identity credential for the billing and compute
// APIs.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// UsageRecord is one row of the provider's usage ledger.
type UsageRecord struct {
	ObjectID   string
	ObjectName string
	ObjectType string
	Project    string
	Region     string
	MetricID   string
	Amount     float64
	Period     string
	Frequency  string
	Attributes map[string]string
}

// Server is the compute API's view of one instance.
type Server struct {
	ID       string
	Name     string
	Status   string
	Project  string
	Region   string
	Flavor   string
	VCPUs    int
	RAMMB    int
	PublicIP bool
	Volumes  []Attachment
	Raw      json.RawMessage
}

// Attachment links a volume to the server it is mounted on.
type Attachment struct {
	VolumeID string
	Device   string
}

// IdentityAPI issues scoped tokens. Credentials are bound at client
// construction.
type IdentityAPI interface {
	IssueToken(ctx context.Context) (Token, error)
}

// BillingAPI is one candidate billing endpoint. Deployments usually have
// several (regional mirrors); the feed walks them in order.
type BillingAPI interface {
	// Name identifies the endpoint in logs and attempt errors.
	Name() string
	UsageRecords(ctx context.Context, token string, start, end time.Time) ([]UsageRecord, error)
	AccountDailyRate(ctx context.Context, token string) (float64, error)
}

// ComputeAPI is the inventory surface.
type ComputeAPI interface {
	// GetServer looks up one server within a (project, region) scope.
	// (nil, nil) when the server is not in that scope.
	GetServer(ctx context.Context, token, project, region, id string) (*Server, error)
	// LocateServer searches every project and region. (nil, nil) when
	// the server genuinely does not exist.
	LocateServer(ctx context.Context, token, id string) (*Server, error)
	ServerMetrics(ctx context.Context, token, serverID string) (map[string]float64, error)
}

// Clients bundles the injected API surface for one account.
type Clients struct {
	Identity IdentityAPI
	Billing  []BillingAPI
	Compute  ComputeAPI
}

// tokenSlack forces a refresh shortly before real expiry so an in-flight
// call never crosses the boundary.
const tokenSlack = 30 * time.Second

// tokenCache caches the identity token until close to expiry. Tokens live
// only here; they are never persisted.
type tokenCache struct {
	mu       sync.Mutex
	identity IdentityAPI
	token    Token
}

func newTokenCache(identity IdentityAPI) *tokenCache {
	return &tokenCache{identity: identity}
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Value != "" && time.Until(c.token.ExpiresAt) > tokenSlack {
		return c.token.Value, nil
	}

	token, err := c.identity.IssueToken(ctx)
	if err != nil {
		return "", &reconcile.AuthError{Op: "issue token", Err: err}
	}
	c.token = token
	return token.Value, nil
}

// invalidate drops the cached token so the next call re-authenticates.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}
