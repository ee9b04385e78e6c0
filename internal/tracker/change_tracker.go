// Package tracker implements baseline change tracking over a graph state.
// The tracker captures a deep copy of the node/edge maps at a point in time
// and computes per-entity status against any later state. It never mutates
// the store; restoring a baseline means loading BaselineState back through
// the store's bulk load.
package tracker

import (
	"sort"
	"sync"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/domain/node"
)

// Status classifies an entity relative to the baseline.
type Status string

const (
	StatusAdded     Status = "added"
	StatusModified  Status = "modified"
	StatusDeleted   Status = "deleted"
	StatusUnchanged Status = "unchanged"
)

// ElementType distinguishes node records from edge records.
type ElementType string

const (
	ElementNode ElementType = "node"
	ElementEdge ElementType = "edge"
)

// ChangeRecord describes one entity's status against the baseline. For
// modified and deleted entities Baseline* carries a deep copy of the entity
// as it existed at capture time, which supports restore and rendering
// "deleted" ghosts.
type ChangeRecord struct {
	ID           string      `json:"id"`
	ElementType  ElementType `json:"element_type"`
	Status       Status      `json:"status"`
	BaselineNode *node.Node  `json:"baseline_node,omitempty"`
	BaselineEdge *edge.Edge  `json:"baseline_edge,omitempty"`
}

// Summary aggregates change counts against the baseline.
type Summary struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
}

// ChangeTracker holds one immutable baseline. With no baseline captured it
// acts as a no-op tracker: every query reports unchanged.
type ChangeTracker struct {
	mu       sync.RWMutex
	baseline *graph.State
}

// New creates a tracker with no baseline.
func New() *ChangeTracker {
	return &ChangeTracker{}
}

// CaptureBaseline deep-copies the given state as the new fixed comparison
// point, replacing any previous baseline.
func (t *ChangeTracker) CaptureBaseline(state *graph.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = state.Clone()
}

// ClearBaseline drops the baseline, returning the tracker to no-op mode.
func (t *ChangeTracker) ClearBaseline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline = nil
}

// HasBaseline reports whether a baseline has been captured.
func (t *ChangeTracker) HasBaseline() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseline != nil
}

// NodeStatus returns the status of the node with the given semantic ID,
// comparing the supplied current entity by value against the baseline entry.
func (t *ChangeTracker) NodeStatus(id string, current *node.Node) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return StatusUnchanged
	}
	base, inBaseline := t.baseline.Nodes[id]
	switch {
	case current == nil && inBaseline:
		return StatusDeleted
	case current == nil:
		return StatusUnchanged
	case !inBaseline:
		return StatusAdded
	case !current.ContentEquals(base):
		return StatusModified
	default:
		return StatusUnchanged
	}
}

// EdgeStatus returns the status of the edge with the given uuid.
func (t *ChangeTracker) EdgeStatus(id string, current *edge.Edge) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return StatusUnchanged
	}
	base, inBaseline := t.baseline.Edges[id]
	switch {
	case current == nil && inBaseline:
		return StatusDeleted
	case current == nil:
		return StatusUnchanged
	case !inBaseline:
		return StatusAdded
	case !current.ContentEquals(base):
		return StatusModified
	default:
		return StatusUnchanged
	}
}

// Summary returns aggregate change counts of the given state against the
// baseline.
func (t *ChangeTracker) Summary(state *graph.State) Summary {
	var s Summary
	for _, rec := range t.Changes(state) {
		switch rec.Status {
		case StatusAdded:
			s.Added++
		case StatusModified:
			s.Modified++
		case StatusDeleted:
			s.Deleted++
		}
	}
	s.Total = s.Added + s.Modified + s.Deleted
	return s
}

// HasChanges is a fast boolean equivalent of Summary(state).Total > 0.
func (t *ChangeTracker) HasChanges(state *graph.State) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return false
	}
	if len(state.Nodes) != len(t.baseline.Nodes) || len(state.Edges) != len(t.baseline.Edges) {
		return true
	}
	for id, n := range state.Nodes {
		base, ok := t.baseline.Nodes[id]
		if !ok || !n.ContentEquals(base) {
			return true
		}
	}
	for id, e := range state.Edges {
		base, ok := t.baseline.Edges[id]
		if !ok || !e.ContentEquals(base) {
			return true
		}
	}
	return false
}

// Changes returns the full per-entity change list, including deletions
// (entities present in baseline but absent from the current state). Records
// are sorted by element type then ID for deterministic output.
func (t *ChangeTracker) Changes(state *graph.State) []ChangeRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return nil
	}

	var records []ChangeRecord

	for id, n := range state.Nodes {
		base, inBaseline := t.baseline.Nodes[id]
		switch {
		case !inBaseline:
			records = append(records, ChangeRecord{ID: id, ElementType: ElementNode, Status: StatusAdded})
		case !n.ContentEquals(base):
			records = append(records, ChangeRecord{
				ID: id, ElementType: ElementNode, Status: StatusModified, BaselineNode: base.Clone(),
			})
		}
	}
	for id, base := range t.baseline.Nodes {
		if _, ok := state.Nodes[id]; !ok {
			records = append(records, ChangeRecord{
				ID: id, ElementType: ElementNode, Status: StatusDeleted, BaselineNode: base.Clone(),
			})
		}
	}

	for id, e := range state.Edges {
		base, inBaseline := t.baseline.Edges[id]
		switch {
		case !inBaseline:
			records = append(records, ChangeRecord{ID: id, ElementType: ElementEdge, Status: StatusAdded})
		case !e.ContentEquals(base):
			records = append(records, ChangeRecord{
				ID: id, ElementType: ElementEdge, Status: StatusModified, BaselineEdge: base.Clone(),
			})
		}
	}
	for id, base := range t.baseline.Edges {
		if _, ok := state.Edges[id]; !ok {
			records = append(records, ChangeRecord{
				ID: id, ElementType: ElementEdge, Status: StatusDeleted, BaselineEdge: base.Clone(),
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].ElementType != records[j].ElementType {
			return records[i].ElementType < records[j].ElementType
		}
		return records[i].ID < records[j].ID
	})
	return records
}

// BaselineState returns an independent deep copy of the baseline, or nil if
// none is captured. Mutating the result never affects the tracker.
func (t *ChangeTracker) BaselineState() *graph.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseline.Clone()
}
