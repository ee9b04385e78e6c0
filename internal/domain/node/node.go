// Package node implements the Node domain entity of the AgentDB graph core.
//
// A node is one element of a systems-engineering model: a function, a flow,
// a functional chain, an actor, a schema, a requirement, a test case, or a
// module. Nodes carry two identities: an immutable internal uuid assigned at
// creation, and a human-chosen semantic ID (e.g. "ValidateOrder.FN.001")
// that edges reference and that the graph store enforces uniqueness over.
package node

import (
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"

	"agentdb-backend/internal/domain/shared"
)

// Type is the closed set of node kinds the model supports.
type Type string

const (
	TypeFunction    Type = "FUNC"
	TypeFlow        Type = "FLOW"
	TypeChain       Type = "FCHAIN"
	TypeActor       Type = "ACTOR"
	TypeSchema      Type = "SCHEMA"
	TypeRequirement Type = "REQ"
	TypeTest        Type = "TEST"
	TypeModule      Type = "MOD"
)

// AllTypes lists every valid node type.
func AllTypes() []Type {
	return []Type{
		TypeFunction, TypeFlow, TypeChain, TypeActor,
		TypeSchema, TypeRequirement, TypeTest, TypeModule,
	}
}

// IsValid reports whether t names a known node type.
func (t Type) IsValid() bool {
	for _, v := range AllTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Category groups node types for similarity threshold selection. Functional
// elements and data schemas tolerate different amounts of name overlap, so
// the scorer configures threshold triples per category.
type Category string

const (
	CategoryFunctional Category = "FUNC"
	CategorySchema     Category = "SCHEMA"
)

// Category returns the similarity category for the node type.
func (t Type) Category() Category {
	if t == TypeSchema {
		return CategorySchema
	}
	return CategoryFunctional
}

// Node is a graph element. Mutation goes through the store's full-replace
// write API; the entity itself only validates and copies.
type Node struct {
	UUID        string           `json:"uuid"`
	SemanticID  string           `json:"semantic_id"`
	Type        Type             `json:"type"`
	Name        string           `json:"name"`
	Descr       string           `json:"descr"`
	WorkspaceID string           `json:"workspace_id"`
	SystemID    string           `json:"system_id"`
	Position    *shared.Position `json:"position,omitempty"`
	Attributes  map[string]any   `json:"attributes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CreatedBy   string           `json:"created_by"`
}

// New creates a node with a fresh uuid and audit timestamps.
func New(semanticID string, t Type, name, descr, workspaceID, systemID, createdBy string) (*Node, error) {
	sid, err := shared.NewSemanticID(semanticID)
	if err != nil {
		return nil, err
	}
	if !t.IsValid() {
		return nil, shared.ErrInvalidNodeType
	}
	now := time.Now()
	return &Node{
		UUID:        uuid.New().String(),
		SemanticID:  sid.String(),
		Type:        t,
		Name:        name,
		Descr:       descr,
		WorkspaceID: workspaceID,
		SystemID:    systemID,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
	}, nil
}

// Validate checks the structural invariants of the node itself. Store-level
// invariants (semantic ID uniqueness) are the store's responsibility.
func (n *Node) Validate() error {
	if _, err := shared.NewSemanticID(n.SemanticID); err != nil {
		return err
	}
	if !n.Type.IsValid() {
		return shared.ErrInvalidNodeType
	}
	if n.UUID == "" {
		n.UUID = uuid.New().String()
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Position = n.Position.Clone()
	if n.Attributes != nil {
		c.Attributes = make(map[string]any, len(n.Attributes))
		maps.Copy(c.Attributes, n.Attributes)
	}
	return &c
}

// ContentEquals compares the fields that matter for change tracking: identity,
// type, name, description, attributes and position. Audit timestamps are
// excluded so a round-tripped node does not read as modified.
func (n *Node) ContentEquals(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.UUID != other.UUID ||
		n.SemanticID != other.SemanticID ||
		n.Type != other.Type ||
		n.Name != other.Name ||
		n.Descr != other.Descr ||
		n.WorkspaceID != other.WorkspaceID ||
		n.SystemID != other.SystemID {
		return false
	}
	if (n.Position == nil) != (other.Position == nil) {
		return false
	}
	if n.Position != nil && *n.Position != *other.Position {
		return false
	}
	// Attribute values are free-form JSON-shaped data, so nested slices and
	// maps are valid and must compare structurally rather than with ==.
	return maps.EqualFunc(n.Attributes, other.Attributes, func(a, b any) bool {
		return reflect.DeepEqual(a, b)
	})
}

// EmbeddingText is the descriptive text the similarity scorer embeds for
// this node. A change to this text must invalidate any cached vector.
func (n *Node) EmbeddingText() string {
	if n.Descr == "" {
		return n.Name
	}
	return n.Name + ": " + n.Descr
}
