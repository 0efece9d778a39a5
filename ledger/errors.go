package ledger

import "errors"

var (
	// ErrNotAuthorized is returned when the caller identity lacks
	// permission for a mutating or administrative operation.
	ErrNotAuthorized = errors.New("identity not authorized")

	// ErrOutOfRange is returned when an index or a history window
	// exceeds the bounds of a ledger.
	ErrOutOfRange = errors.New("index out of range")

	// ErrEmptyNodeID is returned when a write names no node.
	ErrEmptyNodeID = errors.New("node id must not be empty")
)
