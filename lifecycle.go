package multicast

import (
	"context"
	"fmt"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

// Start implements core.Service.
// Every branch processor that is a core.Service is started, even when an
// earlier one fails; all failures are returned together.
func (m *Multicast) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(stateNew, stateStarted) {
		if m.state.Load() == stateStopped {
			return core.ErrEngineUnavailable
		}
		return nil
	}

	logger := m.config.Logger.WithModule(m.Name())
	logger.Info("Starting multicast", telemetry.Int("branches", len(m.processors)))

	errs := m.forEachService(ctx, "start", core.Service.Start)
	if len(errs) > 0 {
		err := &core.LifecycleError{Op: "start", Errs: errs}
		logger.Error("Failed to start branch processors", telemetry.Err(err))
		return err
	}
	return nil
}

// Stop implements core.Service.
// An engine-owned pool is shut down without blocking longer than the
// configured ShutdownWait; an injected executor is left alone. Afterwards
// every branch processor that is a core.Service is stopped, best-effort.
// Stop is idempotent and the engine cannot be used afterwards.
func (m *Multicast) Stop(ctx context.Context) error {
	if m.state.Swap(stateStopped) == stateStopped {
		return nil
	}

	logger := m.config.Logger.WithModule(m.Name())
	logger.Info("Stopping multicast", telemetry.Bool("owns_pool", m.pool != nil))

	if m.pool != nil {
		m.pool.Shutdown()
		if !m.pool.AwaitTermination(m.config.ShutdownWait) {
			logger.Debug("Worker pool still draining after shutdown request")
		}
	}

	errs := m.forEachService(ctx, "stop", core.Service.Stop)
	if len(errs) > 0 {
		err := &core.LifecycleError{Op: "stop", Errs: errs}
		logger.Error("Failed to stop branch processors", telemetry.Err(err))
		return err
	}
	return nil
}

// forEachService calls fn on every branch processor implementing
// core.Service and collects the failures without stopping early
func (m *Multicast) forEachService(ctx context.Context, op string, fn func(core.Service, context.Context) error) []error {
	var errs []error
	for i, p := range m.processors {
		svc, ok := p.(core.Service)
		if !ok {
			continue
		}
		if err := callService(ctx, svc, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s branch %d (%s): %w", op, i, core.ProcessorName(p), err))
		}
	}
	return errs
}

// callService runs fn and turns a panic into an error
func callService(ctx context.Context, svc core.Service, fn func(core.Service, context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()
	return fn(svc, ctx)
}
