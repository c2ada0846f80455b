// Package pipeline drives a deployment end to end: build and push the
// image, converge infrastructure, then verify the health endpoint through
// the load balancer. The pipeline is linear with a single bounded-retry
// gate; on failure it halts and surfaces logs, leaving rollback to the
// operator.
package pipeline

import "fmt"

// State is a deployment pipeline state.
type State string

const (
	StateBuilding   State = "Building"
	StateConverging State = "Converging"
	StateVerifying  State = "Verifying"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
)

// Terminal reports whether the pipeline is done.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// next maps each state to its legal successors. Every non-terminal state
// may fail; only Verifying may succeed.
var next = map[State][]State{
	StateBuilding:   {StateConverging, StateFailed},
	StateConverging: {StateVerifying, StateFailed},
	StateVerifying:  {StateSucceeded, StateFailed},
}

// advance validates a transition and returns the new state.
func advance(from, to State) (State, error) {
	for _, legal := range next[from] {
		if legal == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("illegal transition %s -> %s", from, to)
}
