package pipeline

import "fmt"

// State is the orchestrator's position in a build pass.
type State string

const (
	StateIdle               State = "idle"
	StateCleaning           State = "cleaning"
	StateTransforming       State = "transforming"
	StatePlanning           State = "planning"
	StateEmitting           State = "emitting"
	StateExclusionFiltering State = "exclusion_filtering"
	StatePromoting          State = "promoting"
	StateDone               State = "done"
)

// StageError is the error that aborted a pass, carrying the failing stage
// and cause.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage State, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// stageDef pairs a state with the function that performs it.
type stageDef struct {
	state State
	fn    func(*passState) error
}
