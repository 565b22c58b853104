package entity

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before the run state machine starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DetectionError means the video could not be analysed: unreadable input,
// unsupported codec or an unavailable detector. It is never retried.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return "detection failed: " + e.Err.Error()
}

func (e *DetectionError) Unwrap() error { return e.Err }

// StoreHalf identifies which side of a storage backend failed.
type StoreHalf string

const (
	HalfBlob   StoreHalf = "blob"
	HalfRecord StoreHalf = "record"
)

type StorageError struct {
	Half  StoreHalf
	Op    string
	RunID string
	Slot  ArtifactSlot
	Err   error
}

func (e *StorageError) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("%s store %s %s/%s: %v", e.Half, e.Op, e.RunID, e.Slot, e.Err)
	}
	return fmt.Sprintf("%s store %s %s: %v", e.Half, e.Op, e.RunID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RunError names the stage a run was aborted in.
type RunError struct {
	RunID string
	Stage RunState
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s aborted while %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
