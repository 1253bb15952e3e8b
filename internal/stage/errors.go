package stage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAllocationFailed is wrapped by every AllocationError.
	ErrAllocationFailed = errors.New("stage: allocation failed")

	// ErrDiagnosisFailed marks a patient lost in the diagnosis stage.
	ErrDiagnosisFailed = errors.New("stage: diagnosis failed")
)

// AllocationError reports a failed allocation and the units given back by the rollback.
type AllocationError struct {
	PatientID int
	Step      string
	Released  []string
	Err       error
}

func (e *AllocationError) Error() string {
	released := "nothing"
	if len(e.Released) > 0 {
		released = strings.Join(e.Released, ", ")
	}
	return fmt.Sprintf("allocation for patient %d failed at %s (released %s): %v",
		e.PatientID, e.Step, released, e.Err)
}

// Is reports ErrAllocationFailed as a match.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailed
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
