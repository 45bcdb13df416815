package multicast

import (
	"sync"

	"github.com/creastat/multicast/core"
)

// branchResult is the outcome of running one branch: the branch copy and,
// when the processor failed, the failure. The failure is attached to the
// message only when the result is aggregated, so a failure the message
// already carried on entry is never mistaken for a branch failure.
type branchResult struct {
	index int
	msg   *core.Message
	err   error
}

// failed reports whether the branch processor failed
func (r branchResult) failed() bool {
	return r.err != nil
}

// resultCell holds the in-progress merged outcome of one invocation.
// Merge is the only mutation and is serialized by mu.
type resultCell struct {
	mu       sync.Mutex
	strategy core.AggregationStrategy
	result   *core.Message
	merged   int
}

// newResultCell creates an empty cell that folds with strategy
func newResultCell(strategy core.AggregationStrategy) *resultCell {
	return &resultCell{strategy: strategy}
}

// Get returns the current merged message, or nil if nothing was merged yet
func (c *resultCell) Get() *core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Merged returns how many branch results were folded into the cell
func (c *resultCell) Merged() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged
}

// Merge folds a branch result into the cell.
// The first result is stored as-is; later ones go through the strategy.
// Without a strategy Merge is a no-op.
func (c *resultCell) Merge(index int, msg *core.Message) error {
	if c.strategy == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		c.result = msg
		c.merged++
		return nil
	}

	merged, err := c.strategy.Aggregate(c.result, msg)
	if err != nil {
		return &core.AggregationError{Index: index, Err: err}
	}
	c.result = merged
	c.merged++
	return nil
}
