package core

import (
	"time"

	"github.com/creastat/infra/telemetry"
)

// MulticastConfig configures a multicast engine.
// It is copied at construction and never modified afterwards.
type MulticastConfig struct {
	// Name identifies the engine in logs and metrics
	Name string

	// Processors are the branch processors in configuration order
	Processors []Processor

	// Aggregation folds branch results into one outcome. Nil leaves the
	// inbound message untouched.
	Aggregation AggregationStrategy

	// Parallel runs branches on the worker pool
	Parallel bool

	// Streaming aggregates in completion order. Only honoured with Parallel.
	Streaming bool

	// Executor is a caller-owned pool. When nil and Parallel is set, the
	// engine creates and owns a pool of PoolSize workers.
	Executor Executor

	// PoolSize is the size of an engine-owned pool. Zero means DefaultPoolSize.
	PoolSize int

	// ShutdownWait bounds how long Stop waits for an engine-owned pool.
	ShutdownWait time.Duration

	// Logger receives engine logs
	Logger telemetry.Logger
}

// Mode returns the execution mode selected by the configuration flags
func (c *MulticastConfig) Mode() ExecutionMode {
	switch {
	case c.Parallel && c.Streaming:
		return ModeStreaming
	case c.Parallel:
		return ModeParallel
	default:
		return ModeSequential
	}
}
