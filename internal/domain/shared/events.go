package shared

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a graph change event.
type ChangeType string

const (
	ChangeNodeAdd    ChangeType = "node_add"
	ChangeNodeUpdate ChangeType = "node_update"
	ChangeNodeDelete ChangeType = "node_delete"
	ChangeEdgeAdd    ChangeType = "edge_add"
	ChangeEdgeUpdate ChangeType = "edge_update"
	ChangeEdgeDelete ChangeType = "edge_delete"

	// ChangeBulkLoad is emitted once when the store content is replaced
	// wholesale via LoadFromState, instead of one event per element.
	ChangeBulkLoad ChangeType = "bulk_load"
)

// ChangeEvent describes one successful store mutation. Events are emitted
// after the mutation commits, never before, and in the exact order mutations
// were applied. Version carries the store version after the mutation.
type ChangeEvent struct {
	EventID    string     `json:"event_id"`
	Type       ChangeType `json:"type"`
	ID         string     `json:"id"`
	Version    int64      `json:"version"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewChangeEvent creates a change event for the given element and store
// version.
func NewChangeEvent(t ChangeType, id string, version int64) ChangeEvent {
	return ChangeEvent{
		EventID:    uuid.New().String(),
		Type:       t,
		ID:         id,
		Version:    version,
		OccurredAt: time.Now(),
	}
}
