package core

import "time"

// ExecutionMode identifies which strategy drives the branches of an invocation
type ExecutionMode string

const (
	// ModeSequential runs branches one after another on the calling goroutine
	ModeSequential ExecutionMode = "sequential"

	// ModeParallel runs branches concurrently and aggregates in configuration order
	ModeParallel ExecutionMode = "parallel"

	// ModeStreaming runs branches concurrently and aggregates in completion order
	ModeStreaming ExecutionMode = "streaming"
)

const (
	// DefaultPoolSize is the number of workers of a pool created by the engine itself
	DefaultPoolSize = 5

	// DefaultShutdownWait is how long Stop waits for an owned pool to terminate.
	// Zero means Stop only checks and never blocks.
	DefaultShutdownWait time.Duration = 0
)

// PropertyMulticastIndex is set on every branch copy to its 0-based
// position in the configured processor list
const PropertyMulticastIndex = "MulticastIndex"
