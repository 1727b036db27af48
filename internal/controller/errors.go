package controller

import (
	"errors"
	"fmt"
)

// ErrNoDevices is wrapped by the InventorySourceError of a sync cycle that
// ended with an empty inventory.
var ErrNoDevices = errors.New("no devices to poll")

// InventorySourceError is fatal to the sync cycle that raised it. The cycle
// is not retried; the controller shuts down instead.
type InventorySourceError struct {
	// Source is the name of the failing source, empty when the error is not
	// tied to one.
	Source  string
	Message string
	Err     error
}

func (e *InventorySourceError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = fmt.Sprintf("source %s: %s", e.Source, msg)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InventorySourceError) Unwrap() error {
	return e.Err
}

// IsInventorySourceError checks if an error is or wraps an InventorySourceError.
func IsInventorySourceError(err error) bool {
	var ise *InventorySourceError
	return errors.As(err, &ise)
}
