package multicast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

// processSequential runs the branches one by one in configuration order on
// the calling goroutine. The first failure is returned right away: later
// branches never run and whatever was aggregated so far is dropped.
func (m *Multicast) processSequential(ctx context.Context, cell *resultCell, pairs []branchPair) error {
	logger := m.config.Logger.WithModule(m.Name())

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.runBranch(ctx, pair); err != nil {
			return err
		}
		logger.Debug("Sequential branch complete", telemetry.Int("branch", pair.index))

		if err := m.aggregate(cell, branchResult{index: pair.index, msg: pair.msg}); err != nil {
			return err
		}
	}

	logger.Debug("Done sequential processing", telemetry.Int("branches", len(pairs)))
	return nil
}

// processParallel runs every branch on the executor and waits for all of
// them before aggregating in configuration order, independent of the order
// in which branches finished.
func (m *Multicast) processParallel(ctx context.Context, cell *resultCell, pairs []branchPair) error {
	logger := m.config.Logger.WithModule(m.Name())

	results := make([]branchResult, len(pairs))
	var wg sync.WaitGroup
	var submitErr error

	for _, pair := range pairs {
		wg.Add(1)
		err := m.executor.Submit(func() {
			defer wg.Done()
			results[pair.index] = m.runCaptured(ctx, pair)
		})
		if err != nil {
			wg.Done()
			submitErr = submitError(pair.index, err)
			break
		}
	}

	// Branches that were accepted always run to completion
	wg.Wait()

	if submitErr != nil {
		return submitErr
	}

	for _, result := range results {
		if err := m.aggregate(cell, result); err != nil {
			return err
		}
	}

	logger.Debug("Done parallel processing", telemetry.Int("branches", len(pairs)))
	return nil
}

// processStreaming runs every branch on the executor and aggregates each
// result as soon as it completes, so aggregation order is completion order.
func (m *Multicast) processStreaming(ctx context.Context, cell *resultCell, pairs []branchPair) error {
	logger := m.config.Logger.WithModule(m.Name())

	// Buffered to the branch count so workers never block on delivery
	completed := make(chan branchResult, len(pairs))
	submitted := 0
	var submitErr error

	for _, pair := range pairs {
		err := m.executor.Submit(func() {
			completed <- m.runCaptured(ctx, pair)
		})
		if err != nil {
			submitErr = submitError(pair.index, err)
			break
		}
		submitted++
	}

	// Keep draining after an aggregation failure so no branch outlives the call
	var aggErr error
	for range submitted {
		result := <-completed
		if aggErr != nil {
			continue
		}
		aggErr = m.aggregate(cell, result)
		if aggErr == nil {
			logger.Debug("Streaming branch aggregated", telemetry.Int("branch", result.index))
		}
	}

	if submitErr != nil {
		return submitErr
	}
	if aggErr != nil {
		return aggErr
	}

	logger.Debug("Done parallel streaming processing", telemetry.Int("branches", submitted))
	return nil
}

// submitError wraps an executor rejection. A pool that was shut down under a
// running invocation means the engine is going away.
func submitError(index int, err error) error {
	if errors.Is(err, core.ErrPoolShutdown) {
		return fmt.Errorf("submit branch %d: %w: %w", index, core.ErrEngineUnavailable, err)
	}
	return fmt.Errorf("submit branch %d: %w", index, err)
}
