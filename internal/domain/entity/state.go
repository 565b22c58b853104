package entity

import "time"

type RunState string

const (
	RunStateUploaded   RunState = "UPLOADED"
	RunStateDetecting  RunState = "DETECTING"
	RunStateReducing   RunState = "REDUCING"
	RunStateRendering  RunState = "RENDERING"
	RunStatePersisting RunState = "PERSISTING"
	RunStateRecorded   RunState = "RECORDED"
	RunStateAborted    RunState = "ABORTED"
)

func (s RunState) Terminal() bool {
	return s == RunStateRecorded || s == RunStateAborted
}

// RunStatus is the pollable view of an in-flight or finished run.
type RunStatus struct {
	RunID       string
	DisplayName string
	State       RunState
	Points      int
	PlotStored  bool
	Warnings    []string
	Err         error
	UpdatedAt   time.Time
}
