package services

import (
	"fmt"
	"time"
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s '%s' is already in use", e.Field, e.Value)
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

type CircularReferenceError struct {
	Message string
}

func (e *CircularReferenceError) Error() string { return e.Message }

// DependencyError blocks a delete while other live entities still
// reference the target. The counts are reported back to the client.
type DependencyError struct {
	Resource   string
	Children   int64
	Techniques int64
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s has dependents: %d child categories, %d techniques", e.Resource, e.Children, e.Techniques)
}

type LockedAccountError struct {
	Until time.Time
}

func (e *LockedAccountError) Error() string {
	return "account is locked until " + e.Until.Format(time.RFC3339)
}

type InactiveAccountError struct{}

func (e *InactiveAccountError) Error() string { return "account is deactivated" }
