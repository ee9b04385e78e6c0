// Package errors provides the unified error taxonomy for the graph core.
// Constraint and referential violations are synchronous, reject exactly the
// offending write, and leave the store unchanged; callers translate them
// into user-facing feedback instead of crashing the session. Rule violations
// are deliberately NOT errors — the evaluator returns them as data.
package errors

import (
	"errors"
	"fmt"
)

// Type defines the category of error for programmatic handling.
type Type string

const (
	// TypeConflict covers uniqueness violations: a second node claiming an
	// existing semantic ID, or a second edge with the same composite key.
	TypeConflict Type = "CONFLICT"
	// TypeReferential covers edges whose source or target node is absent.
	TypeReferential Type = "REFERENTIAL"
	// TypeNotFound covers operations addressing an unknown variant or entity.
	TypeNotFound Type = "NOT_FOUND"
	// TypeValidation covers malformed input rejected before any write.
	TypeValidation Type = "VALIDATION"
	// TypeExternal covers failures of injected collaborators, e.g. the
	// embedding provider.
	TypeExternal Type = "EXTERNAL"
)

// Error is the single error type used across the core.
type Error struct {
	Type     Type   `json:"type"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
	Cause    error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s:%s] %s (%s)", e.Type, e.Code, e.Message, e.Resource)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the given type, code and message.
func New(t Type, code, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(t Type, code, format string, args ...any) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error.
func Wrap(t Type, code, message string, cause error) *Error {
	return &Error{Type: t, Code: code, Message: message, Cause: cause}
}

// WithResource returns a copy carrying the affected resource identifier.
func (e *Error) WithResource(resource string) *Error {
	c := *e
	c.Resource = resource
	return &c
}

// DuplicateSemanticID reports a semantic ID collision, naming both the
// existing and the incoming node uuid so the caller can render a precise
// message.
func DuplicateSemanticID(semanticID, existingUUID, incomingUUID string) *Error {
	return Newf(TypeConflict, "duplicate_semantic_id",
		"semantic ID %q already owned by node %s, rejected write of node %s",
		semanticID, existingUUID, incomingUUID).WithResource(semanticID)
}

// DuplicateEdgeKey reports a composite edge key collision.
func DuplicateEdgeKey(key, existingUUID, incomingUUID string) *Error {
	return Newf(TypeConflict, "duplicate_edge_key",
		"edge key %q already owned by edge %s, rejected write of edge %s",
		key, existingUUID, incomingUUID).WithResource(key)
}

// NodeNotFound reports an edge write referencing a missing endpoint.
func NodeNotFound(semanticID string) *Error {
	return Newf(TypeReferential, "node_not_found",
		"node %q not found in store", semanticID).WithResource(semanticID)
}

// NodeRenameBreaksEdges reports a semantic ID rename rejected because edges
// still reference the old ID.
func NodeRenameBreaksEdges(oldID, newID string, edgeCount int) *Error {
	return Newf(TypeReferential, "node_rename_breaks_edges",
		"cannot rename node %q to %q: %d incident edge(s) still reference it",
		oldID, newID, edgeCount).WithResource(oldID)
}

// VariantNotFound reports an operation on an unknown variant.
func VariantNotFound(id string) *Error {
	return Newf(TypeNotFound, "variant_not_found",
		"variant %q not found in pool", id).WithResource(id)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool { return isType(err, TypeConflict) }

// IsReferential reports whether err is a dangling-reference violation.
func IsReferential(err error) bool { return isType(err, TypeReferential) }

// IsNotFound reports whether err addresses an unknown entity.
func IsNotFound(err error) bool { return isType(err, TypeNotFound) }

// IsValidation reports whether err is a malformed-input rejection.
func IsValidation(err error) bool { return isType(err, TypeValidation) }

// IsExternal reports whether err originated in an injected collaborator.
func IsExternal(err error) bool { return isType(err, TypeExternal) }

func isType(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
