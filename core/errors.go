package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBranchFailure indicates that a branch processor failed
	ErrBranchFailure = errors.New("multicast: branch failed")
	// ErrAggregationFailure indicates that the aggregation strategy failed
	ErrAggregationFailure = errors.New("multicast: aggregation failed")
	// ErrLifecycleFailure indicates that starting or stopping failed
	ErrLifecycleFailure = errors.New("multicast: lifecycle failed")
	// ErrEngineUnavailable indicates that the engine was used after Stop
	ErrEngineUnavailable = errors.New("multicast: engine unavailable")
	// ErrPoolShutdown indicates that a task was submitted to a stopped pool
	ErrPoolShutdown = errors.New("multicast: pool is shut down")
)

// BranchError reports the failure of one branch
type BranchError struct {
	Index     int
	Processor string
	Err       error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch %d (%s): %v", e.Index, e.Processor, e.Err)
}

func (e *BranchError) Unwrap() []error {
	return []error{ErrBranchFailure, e.Err}
}

// AggregationError reports a failure of the aggregation strategy while
// merging the given branch
type AggregationError struct {
	Index int
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate branch %d: %v", e.Index, e.Err)
}

func (e *AggregationError) Unwrap() []error {
	return []error{ErrAggregationFailure, e.Err}
}

// LifecycleError collects every failure of a best-effort start or stop
type LifecycleError struct {
	Op   string
	Errs []error
}

func (e *LifecycleError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, strings.Join(msgs, "; "))
}

func (e *LifecycleError) Unwrap() []error {
	return append([]error{ErrLifecycleFailure}, e.Errs...)
}
