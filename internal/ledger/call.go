// Package ledger implements the execution ledger rules: the call state
// machine and the codec for scheduler checkpoint state.
package ledger

import (
	"fmt"
	"time"

	"github.com/roach88/lattice/internal/model"
)

// transitions lists the states reachable from each state.
var transitions = map[model.CallState][]model.CallState{
	model.CallCreated: {model.CallRunning},
	model.CallRunning: {model.CallSuccess, model.CallFailure},
}

// CanTransition reports whether a call may move from one state to another.
func CanTransition(from, to model.CallState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewCall prepares a call in the CREATED state, started at now.
func NewCall(taskID, socketID string, now time.Time) *model.Call {
	return &model.Call{
		State:    model.CallCreated,
		TaskID:   taskID,
		SocketID: socketID,
		Started:  now,
	}
}

// Transition moves c to state to. Reaching a terminal state sets Finished.
// Skipping RUNNING, leaving a terminal state, and self transitions are
// rejected and leave c unchanged.
func Transition(c *model.Call, to model.CallState, now time.Time) error {
	if !to.Valid() {
		return model.NewValidationError(model.ReasonInvalidEnum, model.KindCall, c.ID, "state",
			fmt.Sprintf("invalid state %q", to))
	}
	if !CanTransition(c.State, to) {
		return model.NewValidationError(model.ReasonInvalidTransition, model.KindCall, c.ID, "state",
			fmt.Sprintf("cannot move from %s to %s", c.State, to))
	}
	c.State = to
	if to.Terminal() {
		finished := now
		c.Finished = &finished
	}
	return nil
}
