package journal

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Event classifies one journal entry.
const (
	EventPhase        = "phase"
	EventServiceStart = "service_start"
	EventServiceStop  = "service_stop"
)

// Record is one journaled lifecycle event. The journal is append-only; a run
// is reconstructed by reading its records in order.
type Record struct {
	RunID      string    `json:"run_id"`
	Event      string    `json:"event"`
	Name       string    `json:"name"`   // service name, or phase name for EventPhase
	PID        int       `json:"pid"`    // 0 for phase events
	Detail     string    `json:"detail"` // exit error, failure reason, empty on success
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists lifecycle events across launcher runs.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// NewRunID derives an identifier for one supervisor run from its start time
// and the launcher PID.
func NewRunID() string {
	return fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102T150405"), os.Getpid())
}
