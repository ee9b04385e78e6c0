// Package graph defines the point-in-time export format shared by the store,
// the change tracker and the variant pool: maps of semantic ID to node and
// edge ID to edge, plus the version counter in effect when the state was
// taken. Every consumer that holds a GraphState owns it outright; Clone is
// the only sanctioned way to hand a state across an ownership boundary.
package graph

import (
	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/node"
)

// State is a point-in-time export of a graph. Nodes are keyed by semantic ID,
// edges by their uuid.
type State struct {
	Nodes   map[string]*node.Node `json:"nodes"`
	Edges   map[string]*edge.Edge `json:"edges"`
	Version int64                 `json:"version"`
}

// NewState returns an empty state at version 0.
func NewState() *State {
	return &State{
		Nodes: make(map[string]*node.Node),
		Edges: make(map[string]*edge.Edge),
	}
}

// Clone returns a deep copy: no node or edge pointer is shared between the
// receiver and the result.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		Nodes:   make(map[string]*node.Node, len(s.Nodes)),
		Edges:   make(map[string]*edge.Edge, len(s.Edges)),
		Version: s.Version,
	}
	for id, n := range s.Nodes {
		c.Nodes[id] = n.Clone()
	}
	for id, e := range s.Edges {
		c.Edges[id] = e.Clone()
	}
	return c
}

// NodeList returns the nodes as a slice in unspecified order.
func (s *State) NodeList() []*node.Node {
	nodes := make([]*node.Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

// EdgeList returns the edges as a slice in unspecified order.
func (s *State) EdgeList() []*edge.Edge {
	edges := make([]*edge.Edge, 0, len(s.Edges))
	for _, e := range s.Edges {
		edges = append(edges, e)
	}
	return edges
}

// Diff is an isolated batch of operations applied to one variant. Deletions
// reference nodes by semantic ID and edges by uuid.
type Diff struct {
	AddNodes    []*node.Node `json:"add_nodes,omitempty"`
	UpdateNodes []*node.Node `json:"update_nodes,omitempty"`
	DeleteNodes []string     `json:"delete_nodes,omitempty"`
	AddEdges    []*edge.Edge `json:"add_edges,omitempty"`
	DeleteEdges []string     `json:"delete_edges,omitempty"`
}

// IsEmpty reports whether the diff carries no operations.
func (d *Diff) IsEmpty() bool {
	return d == nil ||
		len(d.AddNodes) == 0 && len(d.UpdateNodes) == 0 && len(d.DeleteNodes) == 0 &&
			len(d.AddEdges) == 0 && len(d.DeleteEdges) == 0
}
