package domain

import "fmt"

var transitions = map[OrderState]OrderState{
	StateCreated:   StateAnalysis,
	StateAnalysis:  StateCompleted,
	StateCompleted: "",
}

// NextState returns the state that follows current.
//
// Advancing from COMPLETED yields a *ConflictError. A state outside the
// lifecycle means the stored record is corrupt and yields ErrCorruptState.
func NextState(current OrderState) (OrderState, error) {
	next, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrCorruptState, current)
	}
	if next == "" {
		return "", NewConflictError("order is already in final state (%s), cannot advance further", current)
	}
	return next, nil
}
