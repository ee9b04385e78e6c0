// Package edge implements the Edge domain entity of the AgentDB graph core.
//
// An edge is a directed, typed relation between two nodes, addressed by the
// nodes' semantic IDs. The composite key (source, type, target) is unique
// within one store; the edge additionally carries its own uuid for change
// tracking and event emission.
package edge

import (
	"time"

	"github.com/google/uuid"

	"agentdb-backend/internal/domain/shared"
)

// Type is the closed set of edge kinds the model supports.
type Type string

const (
	// TypeIO connects functions, flows and actors into io chains.
	TypeIO Type = "io"
	// TypeSatisfy links a function to the requirement it satisfies.
	TypeSatisfy Type = "satisfy"
	// TypeVerify links a test case to the requirement it verifies.
	TypeVerify Type = "verify"
	// TypeAllocate links a function to the module it is allocated to.
	TypeAllocate Type = "allocate"
	// TypeCompose links a functional chain to its member elements.
	TypeCompose Type = "compose"
)

// AllTypes lists every valid edge type.
func AllTypes() []Type {
	return []Type{TypeIO, TypeSatisfy, TypeVerify, TypeAllocate, TypeCompose}
}

// IsValid reports whether t names a known edge type.
func (t Type) IsValid() bool {
	for _, v := range AllTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Edge is a directed relation between two nodes referenced by semantic ID.
type Edge struct {
	UUID        string    `json:"uuid"`
	Type        Type      `json:"type"`
	SourceID    string    `json:"source_id"`
	TargetID    string    `json:"target_id"`
	WorkspaceID string    `json:"workspace_id"`
	SystemID    string    `json:"system_id"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// New creates an edge with a fresh uuid and audit timestamp.
func New(t Type, sourceID, targetID, workspaceID, systemID, createdBy string) (*Edge, error) {
	if !t.IsValid() {
		return nil, shared.ErrInvalidEdgeType
	}
	src, err := shared.NewSemanticID(sourceID)
	if err != nil {
		return nil, err
	}
	dst, err := shared.NewSemanticID(targetID)
	if err != nil {
		return nil, err
	}
	return &Edge{
		UUID:        uuid.New().String(),
		Type:        t,
		SourceID:    src.String(),
		TargetID:    dst.String(),
		WorkspaceID: workspaceID,
		SystemID:    systemID,
		CreatedAt:   time.Now(),
		CreatedBy:   createdBy,
	}, nil
}

// Validate checks the structural invariants of the edge itself.
func (e *Edge) Validate() error {
	if !e.Type.IsValid() {
		return shared.ErrInvalidEdgeType
	}
	if _, err := shared.NewSemanticID(e.SourceID); err != nil {
		return err
	}
	if _, err := shared.NewSemanticID(e.TargetID); err != nil {
		return err
	}
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	return nil
}

// Key returns the composite uniqueness key (source, type, target).
func (e *Edge) Key() string {
	return e.SourceID + "|" + string(e.Type) + "|" + e.TargetID
}

// HasNode reports whether the edge touches the given semantic ID on either
// end.
func (e *Edge) HasNode(semanticID string) bool {
	return e.SourceID == semanticID || e.TargetID == semanticID
}

// IsSelfLoop reports whether source and target are the same node.
func (e *Edge) IsSelfLoop() bool {
	return e.SourceID == e.TargetID
}

// Clone returns a copy sharing no mutable state with the receiver.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// ContentEquals compares the fields that matter for change tracking.
func (e *Edge) ContentEquals(other *Edge) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.UUID == other.UUID &&
		e.Type == other.Type &&
		e.SourceID == other.SourceID &&
		e.TargetID == other.TargetID &&
		e.WorkspaceID == other.WorkspaceID &&
		e.SystemID == other.SystemID
}
