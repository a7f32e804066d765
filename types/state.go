package types

import "time"

// StateAction categorizes what happened to a resource within one snapshot.
type StateAction string

const (
	ActionCreated   StateAction = "created"
	ActionUpdated   StateAction = "updated"
	ActionUnchanged StateAction = "unchanged"
	ActionDeleted   StateAction = "deleted"
)

// ResourceState is one immutable row per resource observed during a
// snapshot, carrying full before/after state plus a field-level diff.
type ResourceState struct {
	SnapshotID    string            `json:"snapshot_id"`
	ProviderID    string            `json:"provider_id"`
	ResourceID    string            `json:"resource_id"`
	ResourceType  string            `json:"resource_type"`
	Action        StateAction       `json:"action"`
	PreviousState Resource          `json:"previous_state"`
	CurrentState  Resource          `json:"current_state"`
	Changes       map[string]Change `json:"changes,omitempty"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

// NewResourceState builds the state row for one observed resource,
// computing the action from the presence of a previous state and the diff.
func NewResourceState(snapshotID string, prev *Resource, cur Resource) ResourceState {
	st := ResourceState{
		SnapshotID:   snapshotID,
		ProviderID:   cur.ProviderID,
		ResourceID:   cur.ResourceID,
		ResourceType: cur.ResourceType,
		CurrentState: cur,
		RecordedAt:   time.Now().UTC(),
	}
	if prev == nil {
		st.Action = ActionCreated
		return st
	}
	st.PreviousState = *prev
	st.Changes = ComputeChanges(*prev, cur)
	if len(st.Changes) == 0 {
		st.Action = ActionUnchanged
	} else {
		st.Action = ActionUpdated
	}
	return st
}

// NewDeletedState builds the deactivation row for a resource that fell out
// of the current billing cycle.
func NewDeletedState(snapshotID string, prev Resource, deactivated Resource) ResourceState {
	return ResourceState{
		SnapshotID:    snapshotID,
		ProviderID:    prev.ProviderID,
		ResourceID:    prev.ResourceID,
		ResourceType:  prev.ResourceType,
		Action:        ActionDeleted,
		PreviousState: prev,
		CurrentState:  deactivated,
		Changes:       ComputeChanges(prev, deactivated),
		RecordedAt:    time.Now().UTC(),
	}
}
