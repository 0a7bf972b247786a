package session

import "github.com/stemsi/exstem-session/internal/model"

// State is either NoAttempt or ActiveAttempt. Callers switch on the concrete type.
type State interface {
	isState()
}

// NoAttempt is the state of a store with nothing loaded.
type NoAttempt struct{}

// ActiveAttempt is a point-in-time copy of the loaded attempt.
type ActiveAttempt struct {
	Attempt        model.Attempt
	CurrentIndex   int
	ElapsedSeconds int
	Paused         bool
}

func (NoAttempt) isState()     {}
func (ActiveAttempt) isState() {}

// Stats are answer counters derived from the live records.
type Stats struct {
	Answered   int `json:"answered"`
	Flagged    int `json:"flagged"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}
