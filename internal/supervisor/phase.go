package supervisor

// Phase is the supervisor's lifecycle state. Control flow is strictly linear:
// each phase either advances to the next or terminates the run in Failed, and
// an interrupt at any non-terminal phase routes through ShuttingDown.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseBuilding        Phase = "building"
	PhaseGeneratingCode  Phase = "generating_code"
	PhaseReclaimingPorts Phase = "reclaiming_ports"
	PhaseLaunching       Phase = "launching"
	PhaseRunning         Phase = "running"
	PhaseShuttingDown    Phase = "shutting_down"
	PhaseStopped         Phase = "stopped"
	PhaseFailed          Phase = "failed"
)

// Terminal reports whether no further transition can occur.
func (p Phase) Terminal() bool {
	return p == PhaseStopped || p == PhaseFailed
}
