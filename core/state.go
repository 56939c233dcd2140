package core

// State is the lifecycle state of an Engine
type State int32

const (
	// StateStopped is both the initial state and the state after shutdown
	StateStopped State = iota
	// StateRunning fetches and processes jobs
	StateRunning
	// StateQuiet stops fetching but drains jobs already claimed
	StateQuiet
	// StateTerminating is shutting down
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateQuiet:
		return "quiet"
	case StateTerminating:
		return "terminating"
	}
	return "unknown"
}

// MarshalText renders the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// accepting reports whether the poll loop should keep running
func (s State) accepting() bool {
	return s == StateRunning || s == StateQuiet
}
