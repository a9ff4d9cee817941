// Package reservation tracks the queue slot chosen for each weekday and the
// asynchronous availability check behind it.
package reservation

// Status represents the state of a day's queue reservation.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusPending     Status = "pending"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
)

// FSM holds the allowed reservation transitions.
type FSM struct {
	transitions map[Status][]Status
}

// NewFSM creates the reservation transition table. A new selection may
// supersede any state, and any state may be cleared.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[Status][]Status{
			StatusIdle:        {StatusPending, StatusIdle},
			StatusPending:     {StatusPending, StatusAvailable, StatusUnavailable, StatusIdle},
			StatusAvailable:   {StatusPending, StatusIdle},
			StatusUnavailable: {StatusPending, StatusIdle},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to Status) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
