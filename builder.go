package multicast

import (
	"context"
	"fmt"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

// Builder constructs multicast engines with a fluent API
type Builder struct {
	config  core.MulticastConfig
	options []Option
}

// NewBuilder creates a new multicast builder
func NewBuilder() *Builder {
	return &Builder{
		config: core.MulticastConfig{
			PoolSize:     core.DefaultPoolSize,
			ShutdownWait: core.DefaultShutdownWait,
		},
	}
}

// Name sets the engine name used in logs and metrics
func (b *Builder) Name(name string) *Builder {
	b.config.Name = name
	return b
}

// AddBranch appends a branch processor
func (b *Builder) AddBranch(p core.Processor) *Builder {
	b.config.Processors = append(b.config.Processors, p)
	return b
}

// AddBranchFunc appends a branch processor given as a function
func (b *Builder) AddBranchFunc(fn func(ctx context.Context, msg *core.Message) error) *Builder {
	return b.AddBranch(core.ProcessorFunc(fn))
}

// Aggregate sets the aggregation strategy
func (b *Builder) Aggregate(strategy core.AggregationStrategy) *Builder {
	b.config.Aggregation = strategy
	return b
}

// Parallel runs branches concurrently, aggregating in configuration order
func (b *Builder) Parallel() *Builder {
	b.config.Parallel = true
	return b
}

// Streaming runs branches concurrently, aggregating in completion order
func (b *Builder) Streaming() *Builder {
	b.config.Parallel = true
	b.config.Streaming = true
	return b
}

// Executor injects a caller-owned executor. The engine never shuts it down.
func (b *Builder) Executor(executor core.Executor) *Builder {
	b.config.Executor = executor
	return b
}

// PoolSize sets the size of an engine-owned worker pool
func (b *Builder) PoolSize(size int) *Builder {
	b.config.PoolSize = size
	return b
}

// ShutdownWait sets how long Stop waits for an engine-owned pool
func (b *Builder) ShutdownWait(wait time.Duration) *Builder {
	b.config.ShutdownWait = wait
	return b
}

// Logger sets the logger
func (b *Builder) Logger(logger telemetry.Logger) *Builder {
	b.config.Logger = logger
	return b
}

// Metrics records engine activity to metrics
func (b *Builder) Metrics(metrics *Metrics) *Builder {
	b.options = append(b.options, WithMetrics(metrics))
	return b
}

// Build validates the configuration and creates the engine
func (b *Builder) Build() (*Multicast, error) {
	m, err := NewMulticast(b.config, b.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build multicast: %w", err)
	}
	return m, nil
}
