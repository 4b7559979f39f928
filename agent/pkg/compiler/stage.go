package compiler

// Stage is the position of a run in the compilation state machine.
type Stage string

const (
	StageDiscovery  Stage = "discovery"
	StagePlanning   Stage = "planning"
	StageValidation Stage = "validation"
	StageExecution  Stage = "execution"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
