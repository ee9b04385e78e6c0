// Package store implements the GraphStore, the single source of truth for a
// modeling session. It holds the node and edge maps, enforces the uniqueness
// and referential constraints, maintains the monotonic version counter, and
// emits one change event per committed mutation.
//
// Failure semantics: every write is check-then-write within one logical
// step. A constraint violation is returned synchronously and leaves the
// store completely unchanged; there are no partial writes.
package store

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/domain/node"
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/errors"
	"agentdb-backend/internal/observability"
)

// Publisher receives change events after each committed mutation. The events
// bus implements this; a nil publisher drops events.
type Publisher interface {
	Publish(shared.ChangeEvent)
}

// NodeFilter narrows the result of Nodes. Zero value matches everything.
type NodeFilter struct {
	Types            []node.Type
	SemanticIDPrefix string
	SystemID         string
}

// EdgeFilter narrows the result of Edges. Zero value matches everything.
type EdgeFilter struct {
	Types    []edge.Type
	SystemID string
}

// GraphStore is the mutable shared resource of the core. All writes are
// serialized behind one writer lock; reads take the shared lock and return
// deep copies so callers can never alias internal state.
type GraphStore struct {
	mu sync.RWMutex

	nodes    map[string]*node.Node // keyed by semantic ID
	byUUID   map[string]string     // node uuid -> semantic ID
	edges    map[string]*edge.Edge // keyed by edge uuid
	edgeKeys map[string]string     // composite (source|type|target) -> edge uuid

	version int64

	publisher Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// New creates an empty store at version 0.
func New(publisher Publisher, metrics *observability.Metrics, logger *zap.Logger) *GraphStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphStore{
		nodes:     make(map[string]*node.Node),
		byUUID:    make(map[string]string),
		edges:     make(map[string]*edge.Edge),
		edgeKeys:  make(map[string]string),
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetNode inserts or replaces a node keyed by its uuid. If a different node
// already owns the semantic ID the write is rejected with a conflict error
// naming both uuids. Use UpsertNode to replace the existing owner instead.
// A replace that renames the semantic ID is rejected with a referential
// error while edges still reference the old ID.
func (s *GraphStore) SetNode(n *node.Node) error {
	return s.writeNode(n, false)
}

// UpsertNode inserts the node, removing any existing node that owns the same
// semantic ID first. The referential position of edges is unaffected because
// the semantic ID they reference stays bound.
func (s *GraphStore) UpsertNode(n *node.Node) error {
	return s.writeNode(n, true)
}

func (s *GraphStore) writeNode(n *node.Node, upsert bool) error {
	if n == nil {
		return errors.New(errors.TypeValidation, "nil_node", "node must not be nil")
	}
	if err := n.Validate(); err != nil {
		return errors.Wrap(errors.TypeValidation, "invalid_node", "node validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// All constraint checks run before any state is touched.
	owner, ownerExists := s.nodes[n.SemanticID]
	if ownerExists && owner.UUID != n.UUID && !upsert {
		return errors.DuplicateSemanticID(n.SemanticID, owner.UUID, n.UUID)
	}

	prev, existed := s.byUUID[n.UUID]
	if existed && prev != n.SemanticID {
		// A full replace may rename the semantic ID, but only while no edge
		// still references the old one; dropping the binding anyway would
		// leave dangling edges.
		if incident := s.incidentEdgesLocked(prev, shared.DirectionBoth); len(incident) > 0 {
			return errors.NodeRenameBreaksEdges(prev, n.SemanticID, len(incident))
		}
	}

	if ownerExists && owner.UUID != n.UUID {
		delete(s.nodes, owner.SemanticID)
		delete(s.byUUID, owner.UUID)
		// Subscribers track nodes by uuid; without this event they would
		// keep a ghost entry for the replaced owner.
		s.commit(shared.ChangeNodeDelete, owner.SemanticID)
	}
	if existed && prev != n.SemanticID {
		delete(s.nodes, prev)
	}

	stored := n.Clone()
	s.nodes[stored.SemanticID] = stored
	s.byUUID[stored.UUID] = stored.SemanticID

	changeType := shared.ChangeNodeAdd
	if existed {
		changeType = shared.ChangeNodeUpdate
	}
	s.commit(changeType, stored.SemanticID)
	return nil
}

// DeleteNode removes the node with the given semantic ID and cascades to
// every incident edge. Each cascaded edge deletion emits its own event
// before the final node_delete. Returns whether anything was removed.
func (s *GraphStore) DeleteNode(semanticID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[semanticID]
	if !ok {
		return false
	}

	for _, e := range s.incidentEdgesLocked(semanticID, shared.DirectionBoth) {
		delete(s.edges, e.UUID)
		delete(s.edgeKeys, e.Key())
		s.commit(shared.ChangeEdgeDelete, e.UUID)
	}

	delete(s.nodes, semanticID)
	delete(s.byUUID, n.UUID)
	s.commit(shared.ChangeNodeDelete, semanticID)
	return true
}

// SetEdge inserts or replaces an edge keyed by its uuid. Both endpoints must
// exist in the store; this referential check is unconditional. If a
// different edge already owns the composite (source, type, target) key the
// write is rejected with a conflict error. Use UpsertEdge to replace the
// existing owner instead.
func (s *GraphStore) SetEdge(e *edge.Edge) error {
	return s.writeEdge(e, false)
}

// UpsertEdge inserts the edge, removing any existing edge with the same
// composite key first. The referential check still applies.
func (s *GraphStore) UpsertEdge(e *edge.Edge) error {
	return s.writeEdge(e, true)
}

func (s *GraphStore) writeEdge(e *edge.Edge, upsert bool) error {
	if e == nil {
		return errors.New(errors.TypeValidation, "nil_edge", "edge must not be nil")
	}
	if err := e.Validate(); err != nil {
		return errors.Wrap(errors.TypeValidation, "invalid_edge", "edge validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Referential check applies to plain writes and upserts alike.
	if _, ok := s.nodes[e.SourceID]; !ok {
		return errors.NodeNotFound(e.SourceID)
	}
	if _, ok := s.nodes[e.TargetID]; !ok {
		return errors.NodeNotFound(e.TargetID)
	}

	key := e.Key()
	if ownerUUID, ok := s.edgeKeys[key]; ok && ownerUUID != e.UUID {
		if !upsert {
			return errors.DuplicateEdgeKey(key, ownerUUID, e.UUID)
		}
		delete(s.edges, ownerUUID)
		delete(s.edgeKeys, key)
		s.commit(shared.ChangeEdgeDelete, ownerUUID)
	}

	_, existed := s.edges[e.UUID]
	if existed {
		// Full replace may change the composite key; drop the old binding.
		if prev := s.edges[e.UUID]; prev.Key() != key {
			delete(s.edgeKeys, prev.Key())
		}
	}

	stored := e.Clone()
	s.edges[stored.UUID] = stored
	s.edgeKeys[key] = stored.UUID

	changeType := shared.ChangeEdgeAdd
	if existed {
		changeType = shared.ChangeEdgeUpdate
	}
	s.commit(changeType, stored.UUID)
	return nil
}

// DeleteEdge removes the edge with the given uuid. Returns whether anything
// was removed.
func (s *GraphStore) DeleteEdge(edgeUUID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.edges[edgeUUID]
	if !ok {
		return false
	}
	delete(s.edges, edgeUUID)
	delete(s.edgeKeys, e.Key())
	s.commit(shared.ChangeEdgeDelete, edgeUUID)
	return true
}

// Node returns a copy of the node with the given semantic ID, or nil.
func (s *GraphStore) Node(semanticID string) *node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[semanticID].Clone()
}

// NodeByUUID returns a copy of the node with the given uuid, or nil.
func (s *GraphStore) NodeByUUID(id string) *node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sid, ok := s.byUUID[id]; ok {
		return s.nodes[sid].Clone()
	}
	return nil
}

// Nodes returns copies of every node matching the filter, sorted by semantic
// ID for deterministic iteration. Pure read, no version change.
func (s *GraphStore) Nodes(filter NodeFilter) []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*node.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if !matchNode(n, filter) {
			continue
		}
		result = append(result, n.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SemanticID < result[j].SemanticID
	})
	return result
}

// Edges returns copies of every edge matching the filter, sorted by
// composite key. Pure read, no version change.
func (s *GraphStore) Edges(filter EdgeFilter) []*edge.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*edge.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if !matchEdge(e, filter) {
			continue
		}
		result = append(result, e.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key() < result[j].Key()
	})
	return result
}

// NodeEdges returns copies of the edges incident to the given semantic ID in
// the requested direction.
func (s *GraphStore) NodeEdges(semanticID string, direction shared.Direction) []*edge.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident := s.incidentEdgesLocked(semanticID, direction)
	result := make([]*edge.Edge, 0, len(incident))
	for _, e := range incident {
		result = append(result, e.Clone())
	}
	return result
}

// ToGraphState exports a deep copy of the full store content plus the
// current version.
func (s *GraphStore) ToGraphState() *graph.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := &graph.State{
		Nodes:   make(map[string]*node.Node, len(s.nodes)),
		Edges:   make(map[string]*edge.Edge, len(s.edges)),
		Version: s.version,
	}
	for id, n := range s.nodes {
		state.Nodes[id] = n.Clone()
	}
	for id, e := range s.edges {
		state.Edges[id] = e.Clone()
	}
	return state
}

// LoadFromState replaces the entire store content with a deep copy of the
// given state and adopts its version. A single bulk_load event is emitted
// instead of one event per element.
func (s *GraphStore) LoadFromState(state *graph.State) {
	if state == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*node.Node, len(state.Nodes))
	s.byUUID = make(map[string]string, len(state.Nodes))
	s.edges = make(map[string]*edge.Edge, len(state.Edges))
	s.edgeKeys = make(map[string]string, len(state.Edges))

	for _, n := range state.Nodes {
		stored := n.Clone()
		s.nodes[stored.SemanticID] = stored
		s.byUUID[stored.UUID] = stored.SemanticID
	}
	for _, e := range state.Edges {
		stored := e.Clone()
		s.edges[stored.UUID] = stored
		s.edgeKeys[stored.Key()] = stored.UUID
	}

	s.version = state.Version
	s.updateGaugesLocked()
	s.logger.Info("graph state loaded",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("edges", len(s.edges)),
		zap.Int64("version", s.version),
	)
	s.emit(shared.NewChangeEvent(shared.ChangeBulkLoad, "", s.version))
}

// Clear empties the store content. The version counter is untouched so
// subsequent writes continue the monotonic sequence.
func (s *GraphStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*node.Node)
	s.byUUID = make(map[string]string)
	s.edges = make(map[string]*edge.Edge)
	s.edgeKeys = make(map[string]string)
	s.updateGaugesLocked()
	s.logger.Info("graph store cleared", zap.Int64("version", s.version))
}

// Version returns the current version counter.
func (s *GraphStore) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NodeCount returns the number of nodes in the store.
func (s *GraphStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges in the store.
func (s *GraphStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// commit bumps the version and emits the change event. Must be called with
// the write lock held, after the mutation is fully applied.
func (s *GraphStore) commit(t shared.ChangeType, id string) {
	s.version++
	if s.metrics != nil {
		s.metrics.StoreMutations.WithLabelValues(string(t)).Inc()
	}
	s.updateGaugesLocked()
	s.emit(shared.NewChangeEvent(t, id, s.version))
}

func (s *GraphStore) updateGaugesLocked() {
	if s.metrics != nil {
		s.metrics.StoreNodes.Set(float64(len(s.nodes)))
		s.metrics.StoreEdges.Set(float64(len(s.edges)))
	}
}

func (s *GraphStore) emit(ev shared.ChangeEvent) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

// incidentEdgesLocked returns the internal edge pointers touching the given
// node, sorted by key for deterministic cascade order. Caller holds a lock.
func (s *GraphStore) incidentEdgesLocked(semanticID string, direction shared.Direction) []*edge.Edge {
	var incident []*edge.Edge
	for _, e := range s.edges {
		switch direction {
		case shared.DirectionIn:
			if e.TargetID == semanticID {
				incident = append(incident, e)
			}
		case shared.DirectionOut:
			if e.SourceID == semanticID {
				incident = append(incident, e)
			}
		default:
			if e.HasNode(semanticID) {
				incident = append(incident, e)
			}
		}
	}
	sort.Slice(incident, func(i, j int) bool {
		return incident[i].Key() < incident[j].Key()
	})
	return incident
}

func matchNode(n *node.Node, f NodeFilter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if n.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SemanticIDPrefix != "" && !strings.HasPrefix(n.SemanticID, f.SemanticIDPrefix) {
		return false
	}
	if f.SystemID != "" && n.SystemID != f.SystemID {
		return false
	}
	return true
}

func matchEdge(e *edge.Edge, f EdgeFilter) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SystemID != "" && e.SystemID != f.SystemID {
		return false
	}
	return true
}
