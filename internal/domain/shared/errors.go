package shared

import "errors"

// Sentinel errors for value object validation. The store-level constraint
// errors (duplicate semantic ID, dangling edge reference) live in
// internal/errors because they carry context about both colliding entities.
var (
	ErrEmptySemanticID   = errors.New("semantic ID cannot be empty")
	ErrInvalidSemanticID = errors.New("semantic ID cannot contain whitespace")
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrInvalidNodeType   = errors.New("unknown node type")
	ErrInvalidEdgeType   = errors.New("unknown edge type")
)
