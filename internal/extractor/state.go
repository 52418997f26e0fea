package extractor

// State is a step of the per-request extraction state machine:
//
//	IDLE → SESSION_CREATED → PAGE_LOADING → RACING → {RESOLVED | TIMED_OUT | LOAD_FAILED} → CLOSED
//
// Failures before the page loads skip straight to CLOSED.
type State int

const (
	StateIdle State = iota
	StateSessionCreated
	StatePageLoading
	StateRacing
	StateResolved
	StateTimedOut
	StateLoadFailed
	StateClosed
)

var stateNames = [...]string{
	StateIdle:           "IDLE",
	StateSessionCreated: "SESSION_CREATED",
	StatePageLoading:    "PAGE_LOADING",
	StateRacing:         "RACING",
	StateResolved:       "RESOLVED",
	StateTimedOut:       "TIMED_OUT",
	StateLoadFailed:     "LOAD_FAILED",
	StateClosed:         "CLOSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Observer is told about every state change of every extraction.
type Observer func(sessionID string, state State)
