package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/node"
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/errors"
)

type recordingPublisher struct {
	events []shared.ChangeEvent
}

func (p *recordingPublisher) Publish(ev shared.ChangeEvent) {
	p.events = append(p.events, ev)
}

func mustNode(t *testing.T, semanticID string, typ node.Type, name string) *node.Node {
	t.Helper()
	n, err := node.New(semanticID, typ, name, "description of "+name, "ws1", "sys1", "tester")
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, typ edge.Type, source, target string) *edge.Edge {
	t.Helper()
	e, err := edge.New(typ, source, target, "ws1", "sys1", "tester")
	require.NoError(t, err)
	return e
}

func TestGraphStore_SetNode_DuplicateSemanticID(t *testing.T) {
	s := New(nil, nil, nil)

	first := mustNode(t, "A.FN.001", node.TypeFunction, "First")
	require.NoError(t, s.SetNode(first))

	second := mustNode(t, "A.FN.001", node.TypeFunction, "Second")
	err := s.SetNode(second)

	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), first.UUID)
	assert.Contains(t, err.Error(), second.UUID)

	// Store unchanged: exactly one node, version unaffected by the failure.
	assert.Equal(t, 1, s.NodeCount())
	assert.Equal(t, int64(1), s.Version())
	assert.Equal(t, "First", s.Node("A.FN.001").Name)
}

func TestGraphStore_UpsertNode_ReplacesOwner(t *testing.T) {
	s := New(nil, nil, nil)

	first := mustNode(t, "A.FN.001", node.TypeFunction, "First")
	require.NoError(t, s.SetNode(first))

	second := mustNode(t, "A.FN.001", node.TypeFunction, "Second")
	require.NoError(t, s.UpsertNode(second))

	assert.Equal(t, 1, s.NodeCount())
	assert.Equal(t, "Second", s.Node("A.FN.001").Name)
	assert.Equal(t, second.UUID, s.Node("A.FN.001").UUID)
}

func TestGraphStore_SetNode_RenameWithIncidentEdgesRejected(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FL.001", node.TypeFlow, "B")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "A.FN.001", "B.FL.001")))
	before := s.Version()

	renamed := s.Node("A.FN.001")
	renamed.SemanticID = "A2.FN.001"
	err := s.SetNode(renamed)

	require.Error(t, err)
	assert.True(t, errors.IsReferential(err))
	assert.Equal(t, before, s.Version())

	// Old binding intact, edge endpoints still resolve.
	require.NotNil(t, s.Node("A.FN.001"))
	assert.Nil(t, s.Node("A2.FN.001"))
	for _, e := range s.Edges(EdgeFilter{}) {
		require.NotNil(t, s.Node(e.SourceID))
		require.NotNil(t, s.Node(e.TargetID))
	}
}

func TestGraphStore_SetNode_RenameWithoutEdges(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))

	renamed := s.Node("A.FN.001")
	renamed.SemanticID = "A2.FN.001"
	require.NoError(t, s.SetNode(renamed))

	assert.Nil(t, s.Node("A.FN.001"))
	require.NotNil(t, s.Node("A2.FN.001"))
	assert.Equal(t, 1, s.NodeCount())
}

func TestGraphStore_UpsertNode_ReplaceEmitsDelete(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)

	first := mustNode(t, "A.FN.001", node.TypeFunction, "First")
	require.NoError(t, s.SetNode(first))

	pub.events = nil
	second := mustNode(t, "A.FN.001", node.TypeFunction, "Second")
	require.NoError(t, s.UpsertNode(second))

	// The replaced owner is deleted from the change stream before the new
	// node arrives, so uuid-keyed subscribers drop the old entry.
	require.Len(t, pub.events, 2)
	assert.Equal(t, shared.ChangeNodeDelete, pub.events[0].Type)
	assert.Equal(t, shared.ChangeNodeAdd, pub.events[1].Type)
	assert.Greater(t, pub.events[1].Version, pub.events[0].Version)
}

func TestGraphStore_UpsertEdge_ReplaceEmitsDelete(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "Src.FN.001", node.TypeFunction, "Src")))
	require.NoError(t, s.SetNode(mustNode(t, "Dst.FN.002", node.TypeFunction, "Dst")))

	first := mustEdge(t, edge.TypeIO, "Src.FN.001", "Dst.FN.002")
	require.NoError(t, s.SetEdge(first))

	pub.events = nil
	second := mustEdge(t, edge.TypeIO, "Src.FN.001", "Dst.FN.002")
	require.NoError(t, s.UpsertEdge(second))

	require.Len(t, pub.events, 2)
	assert.Equal(t, shared.ChangeEdgeDelete, pub.events[0].Type)
	assert.Equal(t, first.UUID, pub.events[0].ID)
	assert.Equal(t, shared.ChangeEdgeAdd, pub.events[1].Type)
	assert.Equal(t, second.UUID, pub.events[1].ID)
}

func TestGraphStore_SetNode_UpdateSameUUID(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)

	n := mustNode(t, "A.FN.001", node.TypeFunction, "First")
	require.NoError(t, s.SetNode(n))

	updated := n.Clone()
	updated.Name = "Renamed"
	require.NoError(t, s.SetNode(updated))

	require.Len(t, pub.events, 2)
	assert.Equal(t, shared.ChangeNodeAdd, pub.events[0].Type)
	assert.Equal(t, shared.ChangeNodeUpdate, pub.events[1].Type)
	assert.Equal(t, "Renamed", s.Node("A.FN.001").Name)
	assert.Equal(t, 1, s.NodeCount())
}

func TestGraphStore_SetEdge_RequiresEndpoints(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "Src.FN.001", node.TypeFunction, "Src")))

	e := mustEdge(t, edge.TypeIO, "Src.FN.001", "Missing.FL.001")
	err := s.SetEdge(e)
	require.Error(t, err)
	assert.True(t, errors.IsReferential(err))
	assert.Equal(t, 0, s.EdgeCount())

	// The referential check is unconditional, even under upsert.
	err = s.UpsertEdge(e)
	require.Error(t, err)
	assert.True(t, errors.IsReferential(err))
}

func TestGraphStore_SetEdge_DuplicateCompositeKey(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "Src.FN.001", node.TypeFunction, "Src")))
	require.NoError(t, s.SetNode(mustNode(t, "Dst.FN.002", node.TypeFunction, "Dst")))

	first := mustEdge(t, edge.TypeIO, "Src.FN.001", "Dst.FN.002")
	require.NoError(t, s.SetEdge(first))

	second := mustEdge(t, edge.TypeIO, "Src.FN.001", "Dst.FN.002")
	err := s.SetEdge(second)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 1, s.EdgeCount())

	// Upsert replaces the prior owner of the key.
	require.NoError(t, s.UpsertEdge(second))
	assert.Equal(t, 1, s.EdgeCount())
	edges := s.Edges(EdgeFilter{})
	assert.Equal(t, second.UUID, edges[0].UUID)
}

func TestGraphStore_DeleteNode_CascadesEdges(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)

	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FL.001", node.TypeFlow, "B")))
	require.NoError(t, s.SetNode(mustNode(t, "C.FN.002", node.TypeFunction, "C")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "A.FN.001", "B.FL.001")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "B.FL.001", "C.FN.002")))

	pub.events = nil
	removed := s.DeleteNode("B.FL.001")

	require.True(t, removed)
	assert.Equal(t, 2, s.NodeCount())
	assert.Equal(t, 0, s.EdgeCount())

	// Each cascaded edge deletion is emitted before the node deletion.
	require.Len(t, pub.events, 3)
	assert.Equal(t, shared.ChangeEdgeDelete, pub.events[0].Type)
	assert.Equal(t, shared.ChangeEdgeDelete, pub.events[1].Type)
	assert.Equal(t, shared.ChangeNodeDelete, pub.events[2].Type)

	// No edge may reference the deleted node afterwards.
	for _, e := range s.Edges(EdgeFilter{}) {
		assert.False(t, e.HasNode("B.FL.001"))
	}

	assert.False(t, s.DeleteNode("B.FL.001"))
}

func TestGraphStore_VersionMonotonic(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)

	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FN.002", node.TypeFunction, "B")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "A.FN.001", "B.FN.002")))

	// A failed write must not consume a version.
	before := s.Version()
	err := s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "Clash"))
	require.Error(t, err)
	assert.Equal(t, before, s.Version())

	s.DeleteNode("A.FN.001")

	var last int64
	for _, ev := range pub.events {
		assert.Greater(t, ev.Version, last, "version must strictly increase per event")
		last = ev.Version
	}
}

func TestGraphStore_ClearKeepsVersionCounter(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FN.002", node.TypeFunction, "B")))
	v := s.Version()

	s.Clear()
	assert.Equal(t, 0, s.NodeCount())
	assert.Equal(t, v, s.Version())

	require.NoError(t, s.SetNode(mustNode(t, "C.FN.003", node.TypeFunction, "C")))
	assert.Equal(t, v+1, s.Version())
}

func TestGraphStore_Filters(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "Order.FN.001", node.TypeFunction, "Order")))
	require.NoError(t, s.SetNode(mustNode(t, "Order.FL.001", node.TypeFlow, "OrderFlow")))
	require.NoError(t, s.SetNode(mustNode(t, "Pay.FN.002", node.TypeFunction, "Pay")))

	tests := []struct {
		name   string
		filter NodeFilter
		want   []string
	}{
		{
			name:   "by single type",
			filter: NodeFilter{Types: []node.Type{node.TypeFlow}},
			want:   []string{"Order.FL.001"},
		},
		{
			name:   "by type set",
			filter: NodeFilter{Types: []node.Type{node.TypeFunction, node.TypeFlow}},
			want:   []string{"Order.FL.001", "Order.FN.001", "Pay.FN.002"},
		},
		{
			name:   "by prefix",
			filter: NodeFilter{SemanticIDPrefix: "Order."},
			want:   []string{"Order.FL.001", "Order.FN.001"},
		},
		{
			name:   "prefix and type",
			filter: NodeFilter{SemanticIDPrefix: "Order.", Types: []node.Type{node.TypeFunction}},
			want:   []string{"Order.FN.001"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, n := range s.Nodes(tt.filter) {
				got = append(got, n.SemanticID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraphStore_NodeEdges_Directions(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FL.001", node.TypeFlow, "B")))
	require.NoError(t, s.SetNode(mustNode(t, "C.FN.002", node.TypeFunction, "C")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "A.FN.001", "B.FL.001")))
	require.NoError(t, s.SetEdge(mustEdge(t, edge.TypeIO, "B.FL.001", "C.FN.002")))

	assert.Len(t, s.NodeEdges("B.FL.001", shared.DirectionIn), 1)
	assert.Len(t, s.NodeEdges("B.FL.001", shared.DirectionOut), 1)
	assert.Len(t, s.NodeEdges("B.FL.001", shared.DirectionBoth), 2)
	assert.Empty(t, s.NodeEdges("A.FN.001", shared.DirectionIn))
}

func TestGraphStore_LoadFromState_BulkEventAndIsolation(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))
	require.NoError(t, s.SetNode(mustNode(t, "B.FN.002", node.TypeFunction, "B")))

	state := s.ToGraphState()
	assert.Equal(t, int64(2), state.Version)

	// Mutating the export must not leak into the store.
	state.Nodes["A.FN.001"].Name = "tampered"
	assert.Equal(t, "A", s.Node("A.FN.001").Name)

	other := New(pub, nil, nil)
	pub.events = nil
	other.LoadFromState(s.ToGraphState())

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.ChangeBulkLoad, pub.events[0].Type)
	assert.Equal(t, int64(2), other.Version())
	assert.Equal(t, 2, other.NodeCount())
}

func TestGraphStore_ReadsReturnCopies(t *testing.T) {
	s := New(nil, nil, nil)
	require.NoError(t, s.SetNode(mustNode(t, "A.FN.001", node.TypeFunction, "A")))

	got := s.Node("A.FN.001")
	got.Name = "tampered"
	assert.Equal(t, "A", s.Node("A.FN.001").Name)
}
