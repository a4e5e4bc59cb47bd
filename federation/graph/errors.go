package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a field is not part of the composed schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrNotAnEntity is returned when a type declares no resolvable key for a service.
	ErrNotAnEntity = errors.New("not an entity")
	// ErrAmbiguousOwner is returned when a field has no owning service.
	ErrAmbiguousOwner = errors.New("ambiguous owner")
	// ErrUnsatisfiableRequirement is returned when no chain of services can supply
	// the representation a service needs to resolve an entity field.
	ErrUnsatisfiableRequirement = errors.New("unsatisfiable requirement")
)

// CompositionError describes one problem found while composing subgraphs.
type CompositionError struct {
	Message string
}

func (e *CompositionError) Error() string {
	return e.Message
}

func compositionErrorf(format string, args ...any) *CompositionError {
	return &CompositionError{Message: fmt.Sprintf(format, args...)}
}
