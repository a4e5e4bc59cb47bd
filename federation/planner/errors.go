package planner

import (
	"errors"
	"fmt"

	"github.com/pampang/federation/federation/graph"
)

// ErrSubscriptionNotSupported is returned for subscription operations.
var ErrSubscriptionNotSupported = errors.New("subscription is not supported")

// PlanningError is returned by Plan for every failure. Err is one of the
// graph sentinels (ErrUnknownField, ErrNotAnEntity, ErrUnsatisfiableRequirement,
// ErrAmbiguousOwner), ErrSubscriptionNotSupported, or nil for malformed
// documents.
type PlanningError struct {
	Message string
	Err     error
}

func (e *PlanningError) Error() string {
	return e.Message
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// Code returns a stable identifier of the failure class.
func (e *PlanningError) Code() string {
	switch {
	case errors.Is(e.Err, graph.ErrUnknownField):
		return "UNKNOWN_FIELD"
	case errors.Is(e.Err, graph.ErrNotAnEntity):
		return "NOT_AN_ENTITY"
	case errors.Is(e.Err, graph.ErrUnsatisfiableRequirement):
		return "UNSATISFIABLE_REQUIREMENT"
	case errors.Is(e.Err, graph.ErrAmbiguousOwner):
		return "AMBIGUOUS_OWNER"
	default:
		return "PLANNING_FAILED"
	}
}

func planningError(err error) *PlanningError {
	var pe *PlanningError
	if errors.As(err, &pe) {
		return pe
	}
	return &PlanningError{Message: err.Error(), Err: err}
}

func planningErrorf(format string, args ...any) *PlanningError {
	return &PlanningError{Message: fmt.Sprintf(format, args...)}
}

func unknownField(typeName, fieldName string) *PlanningError {
	return &PlanningError{
		Message: fmt.Sprintf("Cannot query field %q on type %q", fieldName, typeName),
		Err:     graph.ErrUnknownField,
	}
}
