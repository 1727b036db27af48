package orchestrator

import (
	"errors"
	"fmt"
)

// NotFoundError is returned by operations on an unknown controller id or
// name.
type NotFoundError struct {
	// ResourceType is the kind of the missing resource, e.g. "controller".
	ResourceType string

	// ResourceName is the id or name that was looked up.
	ResourceName string

	// Message replaces the default message when set.
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

func controllerNotFound(id int) *NotFoundError {
	return &NotFoundError{
		ResourceType: "controller",
		ResourceName: fmt.Sprint(id),
		Message:      fmt.Sprintf("Controller with ID: %d not found", id),
	}
}

func controllerNameNotFound(name string) *NotFoundError {
	return &NotFoundError{ResourceType: "controller", ResourceName: name}
}
