package multicast

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

const defaultName = "multicast"

// Engine states
const (
	stateNew int32 = iota
	stateStarted
	stateStopped
)

// branchPair is one branch of an invocation: the processor and the message
// copy it exclusively owns
type branchPair struct {
	index     int
	processor core.Processor
	msg       *core.Message
}

// Option customizes a Multicast beyond its core configuration
type Option func(*Multicast)

// WithMetrics records invocations, branches and aggregations to metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Multicast) {
		m.metrics = metrics
	}
}

// Multicast sends a copy of every inbound message to each configured branch
// processor and optionally aggregates the branch results back into the
// inbound message
type Multicast struct {
	config     core.MulticastConfig
	processors []core.Processor
	executor   core.Executor
	pool       *WorkerPool // non-nil only when created by NewMulticast
	metrics    *Metrics
	state      atomic.Int32
}

// NewMulticast validates config and creates a multicast engine.
// In parallel mode without an injected executor, the engine creates and owns
// a worker pool that is shut down by Stop.
func NewMulticast(config core.MulticastConfig, opts ...Option) (*Multicast, error) {
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	if config.Name == "" {
		config.Name = defaultName
	}
	if config.PoolSize == 0 {
		config.PoolSize = core.DefaultPoolSize
	}
	// Zero logger: fall back to a default one
	if any(config.Logger) == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	m := &Multicast{
		config:     config,
		processors: append([]core.Processor(nil), config.Processors...),
		executor:   config.Executor,
	}
	m.config.Processors = m.processors

	if config.Parallel && m.executor == nil {
		m.pool = NewWorkerPool(config.PoolSize)
		m.executor = m.pool
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Name returns the engine name
func (m *Multicast) Name() string {
	return m.config.Name
}

// Mode returns the execution mode used for every invocation
func (m *Multicast) Mode() core.ExecutionMode {
	return m.config.Mode()
}

// OwnsExecutor reports whether the worker pool was created by the engine
func (m *Multicast) OwnsExecutor() bool {
	return m.pool != nil
}

// String renders the engine and its branches, e.g. Multicast[a, b]
func (m *Multicast) String() string {
	names := make([]string, len(m.processors))
	for i, p := range m.processors {
		names[i] = core.ProcessorName(p)
	}
	return "Multicast[" + strings.Join(names, ", ") + "]"
}

// Process implements core.Processor.
// It fans msg out to every branch and, when an aggregation strategy is
// configured, writes the merged result back onto msg.
func (m *Multicast) Process(ctx context.Context, msg *core.Message) error {
	if m.state.Load() == stateStopped {
		return core.ErrEngineUnavailable
	}

	logger := m.config.Logger.WithModule(m.Name())
	mode := m.config.Mode()
	start := time.Now()

	pairs := m.createPairs(msg)
	cell := newResultCell(m.config.Aggregation)

	logger.Debug("Multicast started",
		telemetry.String("message_id", msg.ID),
		telemetry.String("mode", string(mode)),
		telemetry.Int("branches", len(pairs)))

	var err error
	switch mode {
	case core.ModeStreaming:
		err = m.processStreaming(ctx, cell, pairs)
	case core.ModeParallel:
		err = m.processParallel(ctx, cell, pairs)
	default:
		err = m.processSequential(ctx, cell, pairs)
	}

	m.metrics.observeInvocation(m.Name(), mode, start, err)

	if err != nil {
		logger.Error("Multicast failed", telemetry.Err(err), telemetry.String("message_id", msg.ID))
		return err
	}

	// Write back only once every branch is done
	if m.config.Aggregation != nil {
		if result := cell.Get(); result != nil {
			core.CopyResults(msg, result)
		}
	}

	logger.Debug("Multicast finished",
		telemetry.String("message_id", msg.ID),
		telemetry.Int("aggregated", cell.Merged()))

	return nil
}

// createPairs makes one independent copy of msg per configured processor
func (m *Multicast) createPairs(msg *core.Message) []branchPair {
	pairs := make([]branchPair, len(m.processors))
	for i, p := range m.processors {
		cp := msg.Copy()
		cp.SetProperty(core.PropertyMulticastIndex, i)
		pairs[i] = branchPair{
			index:     i,
			processor: p,
			msg:       cp,
		}
	}
	return pairs
}

// runBranch invokes the branch processor on its copy.
// Panics are recovered and reported like any other branch failure.
func (m *Multicast) runBranch(ctx context.Context, pair branchPair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("processor panicked: %v\nStack trace:\n%s", r, buf[:n])
		}
		if err != nil {
			err = &core.BranchError{
				Index:     pair.index,
				Processor: core.ProcessorName(pair.processor),
				Err:       err,
			}
		}
		m.metrics.observeBranch(m.Name(), m.config.Mode(), err)
	}()

	return pair.processor.Process(ctx, pair.msg)
}

// runCaptured runs a branch on a worker and captures its failure in the
// result instead of letting it escape the worker
func (m *Multicast) runCaptured(ctx context.Context, pair branchPair) branchResult {
	err := m.runBranch(ctx, pair)
	if err != nil {
		logger := m.config.Logger.WithModule(m.Name())
		logger.Warn("Branch failed, failure handed to aggregation",
			telemetry.Err(err),
			telemetry.Int("branch", pair.index))
	}

	return branchResult{
		index: pair.index,
		msg:   pair.msg,
		err:   err,
	}
}

// aggregate folds one branch result into the cell.
// A failed branch reaches the strategy with its failure set on the message.
func (m *Multicast) aggregate(cell *resultCell, result branchResult) error {
	if m.config.Aggregation == nil {
		return nil
	}

	if result.failed() {
		result.msg.SetFailure(result.err)
	}

	err := cell.Merge(result.index, result.msg)
	m.metrics.observeAggregation(m.Name(), err)
	return err
}
