package driver

import "time"

// Stage identifies one phase of the pipeline. Stages execute strictly in
// declaration order; Cleanup and the terminal states are reached from any
// point.
type Stage string

const (
	StageProvisioning Stage = "provisioning"
	StagePreparing    Stage = "preparing"
	StageResolving    Stage = "resolving"
	StageBuilding     Stage = "building"
	StageAssembling   Stage = "assembling"
	StageExtracting   Stage = "extracting"
	StageCleanup      Stage = "cleanup"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Timeouts bound each stage and the pipeline overall. The budgets
// compose: whichever deadline fires first wins. A zero field disables
// that budget.
type Timeouts struct {
	Provision time.Duration
	Prepare   time.Duration
	Resolve   time.Duration
	Build     time.Duration
	Assemble  time.Duration
	Extract   time.Duration
	Pipeline  time.Duration
}

// Generous defaults: compiles dominate the wall clock, everything else is
// network- or disk-bound.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Provision: 5 * time.Minute,
		Prepare:   15 * time.Minute,
		Resolve:   30 * time.Minute,
		Build:     4 * time.Hour,
		Assemble:  30 * time.Minute,
		Extract:   15 * time.Minute,
		Pipeline:  6 * time.Hour,
	}
}
