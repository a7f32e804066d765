package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeChanges(t *testing.T) {
	base := Resource{
		ProviderID:   "prov-1",
		ResourceID:   "srv-1",
		ResourceType: "server",
		Name:         "web-1",
		Region:       "fi-hel1",
		Status:       StatusRunning,
		DailyCost:    4.2,
		IsActive:     true,
	}

	tests := []struct {
		name     string
		mutate   func(r *Resource)
		expected map[string]Change
	}{
		{
			name:     "no changes",
			mutate:   func(r *Resource) {},
			expected: nil,
		},
		{
			name:   "renamed",
			mutate: func(r *Resource) { r.Name = "web-2" },
			expected: map[string]Change{
				FieldName: {Previous: "web-1", Current: "web-2"},
			},
		},
		{
			name:   "cost changed",
			mutate: func(r *Resource) { r.DailyCost = 5.0 },
			expected: map[string]Change{
				FieldCost: {Previous: "4.2", Current: "5"},
			},
		},
		{
			name:   "stopped and moved",
			mutate: func(r *Resource) { r.Status = StatusStopped; r.Region = "de-fra1" },
			expected: map[string]Change{
				FieldStatus: {Previous: StatusRunning, Current: StatusStopped},
				FieldRegion: {Previous: "fi-hel1", Current: "de-fra1"},
			},
		},
		{
			name:   "config changed",
			mutate: func(r *Resource) { r.RawConfig = json.RawMessage(`{"cores":2}`) },
			expected: map[string]Change{
				FieldConfig: {Previous: "", Current: `{"cores":2}`},
			},
		},
		{
			name:   "deactivated",
			mutate: func(r *Resource) { r.IsActive = false },
			expected: map[string]Change{
				FieldActive: {Previous: "true", Current: "false"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := base
			tt.mutate(&cur)
			assert.Equal(t, tt.expected, ComputeChanges(base, cur))
		})
	}
}

func TestNewResourceState_Actions(t *testing.T) {
	cur := Resource{
		ProviderID:   "prov-1",
		ResourceID:   "srv-1",
		ResourceType: "server",
		Name:         "web-1",
		Status:       StatusRunning,
		IsActive:     true,
	}

	created := NewResourceState("snap-1", nil, cur)
	assert.Equal(t, ActionCreated, created.Action)
	assert.True(t, created.PreviousState.IsZero())

	same := cur
	unchanged := NewResourceState("snap-2", &cur, same)
	assert.Equal(t, ActionUnchanged, unchanged.Action)
	assert.Empty(t, unchanged.Changes)

	renamed := cur
	renamed.Name = "web-9"
	updated := NewResourceState("snap-3", &cur, renamed)
	assert.Equal(t, ActionUpdated, updated.Action)
	assert.Contains(t, updated.Changes, FieldName)
}
