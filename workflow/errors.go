package workflow

import (
	"fmt"
	"strings"
)

// ValidationError carries every violated rule at once, never just the first.
// Warnings are advisory and do not block the operation that produced them.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// InvariantViolationError marks an operation the lifecycle does not permit in
// the deviation's current state (e.g. rating a check that was never
// performed, or rejecting a deviation that already has corrective actions).
type InvariantViolationError struct {
	Op     string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func invariant(op, reason string) *InvariantViolationError {
	return &InvariantViolationError{Op: op, Reason: reason}
}
