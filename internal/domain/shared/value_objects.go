package shared

import (
	"strings"
)

// SemanticID is a value object for the human-chosen identifier of a node,
// e.g. "ValidateOrder.FN.001". It is distinct from the immutable uuid: the
// semantic ID is what edges reference and what the store enforces uniqueness
// over.
type SemanticID struct {
	value string
}

// NewSemanticID creates a SemanticID from a string with validation.
func NewSemanticID(id string) (SemanticID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SemanticID{}, ErrEmptySemanticID
	}
	if strings.ContainsAny(id, " \t\n") {
		return SemanticID{}, ErrInvalidSemanticID
	}
	return SemanticID{value: id}, nil
}

// String returns the string representation of the SemanticID.
func (id SemanticID) String() string {
	return id.value
}

// Equals checks if two SemanticIDs are equal.
func (id SemanticID) Equals(other SemanticID) bool {
	return id.value == other.value
}

// IsEmpty checks if the SemanticID is empty.
func (id SemanticID) IsEmpty() bool {
	return id.value == ""
}

// HasPrefix reports whether the semantic ID starts with the given prefix.
func (id SemanticID) HasPrefix(prefix string) bool {
	return strings.HasPrefix(id.value, prefix)
}

// Position is the optional layout position of a node on the graph canvas.
// The core stores it opaquely; layout itself is a UI concern.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clone returns a copy of the position, or nil for a nil receiver.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Direction selects which incident edges of a node a query returns.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Phase identifies a modeling phase. Phases form a fixed progression; each
// phase scopes its own rule subset and success threshold.
type Phase string

const (
	PhaseRequirements Phase = "phase1_requirements"
	PhaseLogical      Phase = "phase2_logical"
	PhasePhysical     Phase = "phase3_physical"
	PhaseVerification Phase = "phase4_verification"
)

// AllPhases lists the phases in progression order.
func AllPhases() []Phase {
	return []Phase{PhaseRequirements, PhaseLogical, PhasePhysical, PhaseVerification}
}

// Next returns the phase that follows p, or p itself if p is the last phase
// or unknown.
func (p Phase) Next() Phase {
	phases := AllPhases()
	for i, ph := range phases {
		if ph == p && i < len(phases)-1 {
			return phases[i+1]
		}
	}
	return p
}

// IsValid reports whether p names a known phase.
func (p Phase) IsValid() bool {
	for _, ph := range AllPhases() {
		if ph == p {
			return true
		}
	}
	return false
}
