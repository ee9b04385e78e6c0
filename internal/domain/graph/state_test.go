package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/node"
)

func TestStateClone(t *testing.T) {
	s := NewState()
	n, err := node.New("A.FN.001", node.TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)
	s.Nodes[n.SemanticID] = n
	e, err := edge.New(edge.TypeIO, "A.FN.001", "B.FL.001", "ws1", "sys1", "tester")
	require.NoError(t, err)
	s.Edges[e.UUID] = e
	s.Version = 5

	c := s.Clone()
	c.Nodes["A.FN.001"].Name = "tampered"
	c.Edges[e.UUID].TargetID = "C.FL.002"
	c.Version = 9

	assert.Equal(t, "Validate", s.Nodes["A.FN.001"].Name)
	assert.Equal(t, "B.FL.001", s.Edges[e.UUID].TargetID)
	assert.Equal(t, int64(5), s.Version)

	var nilState *State
	assert.Nil(t, nilState.Clone())
}

func TestStateLists(t *testing.T) {
	s := NewState()
	assert.Empty(t, s.NodeList())
	assert.Empty(t, s.EdgeList())

	n, err := node.New("A.FN.001", node.TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)
	s.Nodes[n.SemanticID] = n

	assert.Len(t, s.NodeList(), 1)
}

func TestDiffIsEmpty(t *testing.T) {
	var nilDiff *Diff
	assert.True(t, nilDiff.IsEmpty())
	assert.True(t, (&Diff{}).IsEmpty())

	assert.False(t, (&Diff{DeleteNodes: []string{"A.FN.001"}}).IsEmpty())
	n, err := node.New("A.FN.001", node.TypeFunction, "Validate", "descr", "ws1", "sys1", "tester")
	require.NoError(t, err)
	assert.False(t, (&Diff{AddNodes: []*node.Node{n}}).IsEmpty())
}
