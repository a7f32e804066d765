// Package registry normalizes provider-specific type and status
// vocabularies into the canonical taxonomy. The mapper is pure: it writes
// nothing, callers record any advisory rows themselves.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/types"
)

// TypeMapping is the canonical classification of one raw provider type.
type TypeMapping struct {
	CanonicalType string
	ServiceName   string
}

// Input is the provider-side raw object handed to the mapper.
type Input struct {
	ID        string
	Name      string
	RawType   string
	RawStatus string
	Region    string
	Config    json.RawMessage
}

// Processor is a per-provider escape hatch applied after mapping.
type Processor func(providerType string, res *types.ProviderResource)

// Validator checks a mapped resource before it is accepted.
type Validator func(res types.ProviderResource) error

// Wildcard matches any provider in the lookup tables.
const Wildcard = "*"

// Registry holds the two-tier mapping tables.
type Registry struct {
	typeRules   map[string]map[string]TypeMapping
	statusRules map[string]map[string]string
	processors  map[string][]Processor
	validators  []Validator
	logger      zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for unmapped-status reporting.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates a registry preloaded with the default wildcard tables.
func New(opts ...Option) *Registry {
	r := &Registry{
		typeRules:   map[string]map[string]TypeMapping{Wildcard: defaultTypeRules()},
		statusRules: map[string]map[string]string{Wildcard: defaultStatusRules()},
		processors:  make(map[string][]Processor),
		validators:  []Validator{validateRequiredFields},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTypes installs provider-specific type rules. Later registrations
// for the same raw type win.
func (r *Registry) RegisterTypes(providerType string, rules map[string]TypeMapping) {
	table, ok := r.typeRules[providerType]
	if !ok {
		table = make(map[string]TypeMapping)
		r.typeRules[providerType] = table
	}
	for raw, m := range rules {
		table[raw] = m
	}
}

// RegisterStatuses installs provider-specific status rules.
func (r *Registry) RegisterStatuses(providerType string, rules map[string]string) {
	table, ok := r.statusRules[providerType]
	if !ok {
		table = make(map[string]string)
		r.statusRules[providerType] = table
	}
	for raw, canonical := range rules {
		table[raw] = canonical
	}
}

// RegisterProcessor adds a post-mapping processor for one provider type.
func (r *Registry) RegisterProcessor(providerType string, p Processor) {
	r.processors[providerType] = append(r.processors[providerType], p)
}

// MapType resolves a raw type through the provider table, then the wildcard
// table. ok is false when neither matched and the "unknown" fallback was
// used.
func (r *Registry) MapType(providerType, rawType string) (TypeMapping, bool) {
	if table, ok := r.typeRules[providerType]; ok {
		if m, ok := table[rawType]; ok {
			return m, true
		}
	}
	if m, ok := r.typeRules[Wildcard][rawType]; ok {
		return m, true
	}
	return TypeMapping{CanonicalType: "unknown", ServiceName: types.ServiceOther}, false
}

// MapStatus resolves a raw status the same way. Unmapped statuses pass
// through unchanged but are logged.
func (r *Registry) MapStatus(providerType, rawStatus string) string {
	if table, ok := r.statusRules[providerType]; ok {
		if s, ok := table[rawStatus]; ok {
			return s
		}
	}
	if s, ok := r.statusRules[Wildcard][rawStatus]; ok {
		return s
	}
	if rawStatus != "" {
		r.logger.Debug().
			Str("provider_type", providerType).
			Str("raw_status", rawStatus).
			Msg("status not mapped, passing through")
	}
	return rawStatus
}

// Map normalizes one raw object into a ProviderResource.
func (r *Registry) Map(in Input, providerType string) (types.ProviderResource, error) {
	mapping, _ := r.MapType(providerType, in.RawType)

	res := types.ProviderResource{
		ResourceID:   in.ID,
		Name:         in.Name,
		ResourceType: mapping.CanonicalType,
		ServiceName:  mapping.ServiceName,
		Region:       in.Region,
		Status:       r.MapStatus(providerType, in.RawStatus),
		RawConfig:    in.Config,
		Tags:         types.Tags{Name: in.Name},
	}

	for _, p := range r.processors[providerType] {
		p(providerType, &res)
	}
	for _, v := range r.validators {
		if err := v(res); err != nil {
			return types.ProviderResource{}, fmt.Errorf("mapping %s/%s: %w", providerType, in.ID, err)
		}
	}
	return res, nil
}

func validateRequiredFields(res types.ProviderResource) error {
	if res.ResourceID == "" {
		return fmt.Errorf("resource id is empty")
	}
	if res.Name == "" {
		return fmt.Errorf("resource name is empty")
	}
	if res.ResourceType == "" {
		return fmt.Errorf("resource type is empty")
	}
	return nil
}
