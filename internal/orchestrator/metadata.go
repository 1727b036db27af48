package orchestrator

import (
	"strings"
	"time"

	"poller/internal/config"
)

// State is the lifecycle state of a controller.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateDeleted State = "deleted"
)

// String returns the state in upper case, as shown in tables.
func (s State) String() string {
	return strings.ToUpper(string(s))
}

// Metadata is a point-in-time snapshot of a controller. It shares no memory
// with the live controller.
type Metadata struct {
	ID              int                     `json:"id"`
	Name            string                  `json:"name"`
	CreatedTime     time.Time               `json:"created_time"`
	LastStartTime   *time.Time              `json:"last_start_time"`
	LastStopTime    *time.Time              `json:"last_stop_time"`
	LastUpdatedTime *time.Time              `json:"last_updated_time"`
	State           State                   `json:"state"`
	LastError       string                  `json:"last_error,omitempty"`
	Config          config.ControllerConfig `json:"config"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
