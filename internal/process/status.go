package process

import "time"

// State is the last-known lifecycle state of a launched service.
type State string

const (
	StateStarting State = "starting"
	StateAlive    State = "alive"
	StateExited   State = "exited"
	StateUnknown  State = "unknown"
)

// Status is a point-in-time snapshot of a running service.
type Status struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	State     State     `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
}
