package driver

import (
	"errors"
	"fmt"
	"time"
)

// ErrDriver wraps pipeline failures that have no more specific type.
var ErrDriver = errors.New("pipeline failed")

// ProvisionError reports that no environment could be acquired within the
// retry budget. The wrapped error is the last attempt's failure.
type ProvisionError struct {
	Attempts uint64
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// BuildError reports a component compilation failure. Fatal to the
// pipeline; LogTail carries the newest captured build output for the
// failure report.
type BuildError struct {
	Component string
	Err       error
	LogTail   []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %s: %v", e.Component, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// VerificationError reports that a freshly built component failed the
// package manager's post-build check. Fatal to the pipeline: a tree that
// fails verification must not enter the view or a cache tier.
type VerificationError struct {
	Component string
	Err       error
	LogTail   []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %s: %v", e.Component, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// StageTimeoutError reports that a single stage exhausted its time
// budget while the pipeline as a whole was still within its own.
type StageTimeoutError struct {
	Stage  Stage
	Budget time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.Stage, e.Budget)
}

// CacheIntegrityWarning records a cached artifact that failed its size,
// digest or signature check during materialization. Non-fatal: the
// component is demoted to a local build and the warning surfaces in the
// pipeline output.
type CacheIntegrityWarning struct {
	Component string
	Tier      string
	Reason    string
}

func (w CacheIntegrityWarning) String() string {
	return fmt.Sprintf("%s from tier %s rejected: %s", w.Component, w.Tier, w.Reason)
}
