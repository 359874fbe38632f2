package tools

import "errors"

// Sentinel errors returned by the registry. Callers branch with errors.Is.
var (
	// ErrDuplicateTool is returned when registering a name that already exists.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolNotFound is returned when executing an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParameter is returned when caller-supplied parameters violate
	// the tool's parameter contract.
	ErrInvalidParameter = errors.New("invalid tool parameters")

	// ErrInvalidResult is returned when a tool implementation returns a
	// payload that violates its own declared return contract.
	ErrInvalidResult = errors.New("tool result violates return contract")
)
