package multicast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/aggregate"
	"github.com/creastat/multicast/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allModes = []core.ExecutionMode{core.ModeSequential, core.ModeParallel, core.ModeStreaming}

func testLogger() telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

// newTestMulticast builds an engine in the given mode and stops it when the test ends
func newTestMulticast(t testing.TB, mode core.ExecutionMode, strategy core.AggregationStrategy, processors ...core.Processor) *Multicast {
	t.Helper()

	m, err := NewMulticast(core.MulticastConfig{
		Name:        "test",
		Processors:  processors,
		Aggregation: strategy,
		Parallel:    mode != core.ModeSequential,
		Streaming:   mode == core.ModeStreaming,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m
}

// MockProcessor records invocations and optionally delays, rewrites or fails
type MockProcessor struct {
	name    string
	delay   time.Duration
	err     error
	rewrite func(msg *core.Message)
	calls   atomic.Int32
	log     *callLog
}

func (m *MockProcessor) Name() string {
	return m.name
}

func (m *MockProcessor) Process(ctx context.Context, msg *core.Message) error {
	m.calls.Add(1)
	if m.log != nil {
		m.log.add(m.name)
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.rewrite != nil {
		m.rewrite(msg)
	}
	return m.err
}

// callLog records the order in which processors were invoked
type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// suffixBranch appends its index to the body it receives
func suffixBranch(index int, delay time.Duration) *MockProcessor {
	return &MockProcessor{
		name:  "branch" + strconv.Itoa(index),
		delay: delay,
		rewrite: func(msg *core.Message) {
			msg.Body = msg.Body.(string) + strconv.Itoa(index)
		},
	}
}

func TestMulticastWithoutAggregationLeavesMessageUnchanged(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			log := &callLog{}
			branches := make([]*MockProcessor, 4)
			processors := make([]core.Processor, 4)
			for i := range branches {
				branches[i] = suffixBranch(i, 0)
				branches[i].log = log
				processors[i] = branches[i]
			}

			m := newTestMulticast(t, mode, nil, processors...)

			msg := core.NewMessage("X")
			msg.SetHeader("h", "v")
			require.NoError(t, m.Process(context.Background(), msg))

			assert.Equal(t, "X", msg.Body)
			assert.Equal(t, map[string]any{"h": "v"}, msg.Headers)
			for i, b := range branches {
				assert.Equal(t, int32(1), b.calls.Load(), "branch %d", i)
			}
			if mode == core.ModeSequential {
				assert.Equal(t, []string{"branch0", "branch1", "branch2", "branch3"}, log.snapshot())
			}
		})
	}
}

func TestMulticastSequentialConcatenatesInOrder(t *testing.T) {
	m := newTestMulticast(t, core.ModeSequential, aggregate.Concat("|"),
		suffixBranch(0, 0), suffixBranch(1, 0), suffixBranch(2, 0))

	msg := core.NewMessage("X")
	require.NoError(t, m.Process(context.Background(), msg))
	assert.Equal(t, "X0|X1|X2", msg.Body)
}

// Inbound "X", three branches append their index after 300/100/200ms,
// keep-latest aggregation.
func TestMulticastLatestWinsPerMode(t *testing.T) {
	tests := []struct {
		mode     core.ExecutionMode
		expected string
	}{
		{core.ModeSequential, "X2"},
		{core.ModeParallel, "X2"},
		{core.ModeStreaming, "X0"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			m := newTestMulticast(t, tt.mode, aggregate.Latest(),
				suffixBranch(0, 300*time.Millisecond),
				suffixBranch(1, 100*time.Millisecond),
				suffixBranch(2, 200*time.Millisecond))

			msg := core.NewMessage("X")
			require.NoError(t, m.Process(context.Background(), msg))
			assert.Equal(t, tt.expected, msg.Body)
		})
	}
}

// For any per-branch delays, parallel mode SHALL aggregate in configuration order.
func TestPropertyParallelAggregatesInConfigurationOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		delays := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 6).Draw(rt, "delays")

		processors := make([]core.Processor, len(delays))
		expected := ""
		for i, d := range delays {
			processors[i] = suffixBranch(i, time.Duration(d)*time.Millisecond)
			if i > 0 {
				expected += ","
			}
			expected += "X" + strconv.Itoa(i)
		}

		m := newTestMulticast(t, core.ModeParallel, aggregate.Concat(","), processors...)

		msg := core.NewMessage("X")
		if err := m.Process(context.Background(), msg); err != nil {
			rt.Fatalf("process failed: %v", err)
		}
		if msg.Body != expected {
			rt.Fatalf("expected %q, got %q", expected, msg.Body)
		}
	})
}

// For any delays, a commutative strategy SHALL give the same result in streaming mode.
func TestPropertyStreamingCommutativeResult(t *testing.T) {
	sum := core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		previous.Body = previous.Body.(int) + branch.Body.(int)
		return previous, nil
	})

	rapid.Check(t, func(rt *rapid.T) {
		delays := rapid.SliceOfN(rapid.IntRange(0, 3), 1, 6).Draw(rt, "delays")

		processors := make([]core.Processor, len(delays))
		expected := 0
		for i, d := range delays {
			value := i + 1
			expected += value
			processors[i] = &MockProcessor{
				name:    "add" + strconv.Itoa(value),
				delay:   time.Duration(d) * time.Millisecond,
				rewrite: func(msg *core.Message) { msg.Body = value },
			}
		}

		m := newTestMulticast(t, core.ModeStreaming, sum, processors...)

		msg := core.NewMessage(0)
		if err := m.Process(context.Background(), msg); err != nil {
			rt.Fatalf("process failed: %v", err)
		}
		if msg.Body != expected {
			rt.Fatalf("expected %d, got %v", expected, msg.Body)
		}
	})
}

// For any failing branch k, sequential mode SHALL never invoke branches after k.
func TestPropertySequentialFailFast(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		k := rapid.IntRange(0, n-1).Draw(rt, "k")
		cause := errors.New("branch broke")

		branches := make([]*MockProcessor, n)
		processors := make([]core.Processor, n)
		for i := range branches {
			branches[i] = suffixBranch(i, 0)
			if i == k {
				branches[i].err = cause
			}
			processors[i] = branches[i]
		}

		m := newTestMulticast(t, core.ModeSequential, aggregate.Concat(","), processors...)

		msg := core.NewMessage("X")
		err := m.Process(context.Background(), msg)
		if !errors.Is(err, core.ErrBranchFailure) || !errors.Is(err, cause) {
			rt.Fatalf("expected branch failure, got %v", err)
		}

		var branchErr *core.BranchError
		if !errors.As(err, &branchErr) || branchErr.Index != k {
			rt.Fatalf("expected failure of branch %d, got %v", k, err)
		}

		for i, b := range branches {
			want := int32(1)
			if i > k {
				want = 0
			}
			if got := b.calls.Load(); got != want {
				rt.Fatalf("branch %d invoked %d times, want %d", i, got, want)
			}
		}

		// No partial result is written back
		if msg.Body != "X" {
			rt.Fatalf("inbound message changed: %v", msg.Body)
		}
	})
}

func TestMulticastParallelFailureDoesNotSkipSiblings(t *testing.T) {
	for _, mode := range []core.ExecutionMode{core.ModeParallel, core.ModeStreaming} {
		t.Run(string(mode), func(t *testing.T) {
			cause := errors.New("branch broke")
			failing := &MockProcessor{name: "failing", err: cause}
			slow := suffixBranch(1, 50*time.Millisecond)
			fast := suffixBranch(2, 0)

			m := newTestMulticast(t, mode, aggregate.SurfaceFailures(aggregate.Latest()), failing, slow, fast)

			msg := core.NewMessage("X")
			require.NoError(t, m.Process(context.Background(), msg))

			assert.Equal(t, int32(1), failing.calls.Load())
			assert.Equal(t, int32(1), slow.calls.Load())
			assert.Equal(t, int32(1), fast.calls.Load())

			// The failure only surfaces because the strategy chose to keep it
			assert.ErrorIs(t, msg.Failure(), core.ErrBranchFailure)
			assert.ErrorIs(t, msg.Failure(), cause)
		})
	}
}

func TestMulticastParallelFailureInvisibleWithoutStrategyInterest(t *testing.T) {
	failing := &MockProcessor{name: "failing", err: errors.New("ignored")}
	m := newTestMulticast(t, core.ModeParallel, aggregate.Latest(), failing, suffixBranch(1, 0))

	msg := core.NewMessage("X")
	require.NoError(t, m.Process(context.Background(), msg))
	assert.Equal(t, "X1", msg.Body)
	assert.NoError(t, msg.Failure())
}

func TestMulticastPanicBecomesBranchFailure(t *testing.T) {
	panicking := core.ProcessorFunc(func(ctx context.Context, msg *core.Message) error {
		panic("kaboom")
	})

	t.Run("sequential", func(t *testing.T) {
		m := newTestMulticast(t, core.ModeSequential, nil, panicking)
		err := m.Process(context.Background(), core.NewMessage("X"))
		assert.ErrorIs(t, err, core.ErrBranchFailure)
		assert.ErrorContains(t, err, "kaboom")
	})

	t.Run("parallel", func(t *testing.T) {
		m := newTestMulticast(t, core.ModeParallel, aggregate.Latest(), panicking)
		msg := core.NewMessage("X")
		require.NoError(t, m.Process(context.Background(), msg))
		assert.ErrorContains(t, msg.Failure(), "kaboom")
	})
}

func TestMulticastCopiesAreIsolated(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			original := core.NewMessage(map[string]any{"count": 0})
			original.SetHeader("seen", []string{})

			var mu sync.Mutex
			var observed []any
			processors := make([]core.Processor, 3)
			for i := range processors {
				processors[i] = core.ProcessorFunc(func(ctx context.Context, msg *core.Message) error {
					if msg == original {
						return errors.New("branch received the inbound message")
					}
					body := msg.Body.(map[string]any)
					mu.Lock()
					observed = append(observed, body["count"])
					mu.Unlock()
					body["count"] = i + 1
					msg.Headers["seen"] = append(msg.Headers["seen"].([]string), strconv.Itoa(i))
					return nil
				})
			}

			m := newTestMulticast(t, mode, nil, processors...)
			require.NoError(t, m.Process(context.Background(), original))

			assert.Equal(t, []any{0, 0, 0}, observed)
			assert.Equal(t, map[string]any{"count": 0}, original.Body)
			assert.Equal(t, []string{}, original.Headers["seen"])
		})
	}
}

type invoice struct {
	Total int
	Lines []int
}

func TestMulticastCopiesAreIsolatedForAnyBody(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode)+"/int slice", func(t *testing.T) {
			shared := &callLog{}
			processors := make([]core.Processor, 3)
			for i := range processors {
				processors[i] = core.ProcessorFunc(func(ctx context.Context, msg *core.Message) error {
					body := msg.Body.([]int)
					if body[0] != 1 {
						shared.add(fmt.Sprintf("branch %d saw %v", i, body))
						return nil
					}
					body[0] = 99
					return nil
				})
			}

			m := newTestMulticast(t, mode, nil, processors...)
			msg := core.NewMessage([]int{1, 2, 3})
			require.NoError(t, m.Process(context.Background(), msg))
			assert.Equal(t, []int{1, 2, 3}, msg.Body)
			assert.Empty(t, shared.snapshot())
		})

		t.Run(string(mode)+"/struct pointer", func(t *testing.T) {
			original := &invoice{Total: 10, Lines: []int{4, 6}}
			shared := &callLog{}
			processors := make([]core.Processor, 3)
			for i := range processors {
				processors[i] = core.ProcessorFunc(func(ctx context.Context, msg *core.Message) error {
					body := msg.Body.(*invoice)
					if body == original || body.Total != 10 || body.Lines[0] != 4 {
						shared.add(fmt.Sprintf("branch %d saw shared body %+v", i, body))
						return nil
					}
					body.Total += i
					body.Lines[0] = i
					return nil
				})
			}

			m := newTestMulticast(t, mode, nil, processors...)
			msg := core.NewMessage(original)
			require.NoError(t, m.Process(context.Background(), msg))
			assert.Equal(t, &invoice{Total: 10, Lines: []int{4, 6}}, msg.Body)
			assert.Empty(t, shared.snapshot())
		})
	}
}

func TestMulticastSetsBranchIndex(t *testing.T) {
	var mu sync.Mutex
	indexes := map[string]any{}
	record := func(name string) core.Processor {
		return &MockProcessor{name: name, rewrite: func(msg *core.Message) {
			idx, _ := msg.Property(core.PropertyMulticastIndex)
			mu.Lock()
			indexes[name] = idx
			mu.Unlock()
		}}
	}

	m := newTestMulticast(t, core.ModeParallel, nil, record("a"), record("b"), record("c"))
	msg := core.NewMessage("X")
	require.NoError(t, m.Process(context.Background(), msg))

	assert.Equal(t, map[string]any{"a": 0, "b": 1, "c": 2}, indexes)
	_, onInbound := msg.Property(core.PropertyMulticastIndex)
	assert.False(t, onInbound)
}

func TestMulticastAggregationFailurePropagates(t *testing.T) {
	boom := errors.New("cannot merge")
	failing := core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		return nil, boom
	})

	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			branches := []*MockProcessor{suffixBranch(0, 0), suffixBranch(1, 10*time.Millisecond), suffixBranch(2, 20*time.Millisecond)}
			m := newTestMulticast(t, mode, failing, branches[0], branches[1], branches[2])

			msg := core.NewMessage("X")
			err := m.Process(context.Background(), msg)
			assert.ErrorIs(t, err, core.ErrAggregationFailure)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, "X", msg.Body)

			if mode == core.ModeSequential {
				assert.Equal(t, int32(0), branches[2].calls.Load())
				return
			}
			// Parallel modes still let every branch finish
			for i, b := range branches {
				assert.Equal(t, int32(1), b.calls.Load(), "branch %d", i)
			}
		})
	}
}

func TestMulticastSequentialStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &MockProcessor{name: "first", rewrite: func(*core.Message) { cancel() }}
	second := &MockProcessor{name: "second"}

	m := newTestMulticast(t, core.ModeSequential, nil, first, second)

	err := m.Process(ctx, core.NewMessage("X"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestMulticastWithoutBranches(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			m := newTestMulticast(t, mode, aggregate.Latest())
			msg := core.NewMessage("X")
			require.NoError(t, m.Process(context.Background(), msg))
			assert.Equal(t, "X", msg.Body)
		})
	}
}

func TestMulticastSubmitRejected(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Shutdown()

	for _, streaming := range []bool{false, true} {
		t.Run(fmt.Sprintf("streaming=%v", streaming), func(t *testing.T) {
			branch := suffixBranch(0, 0)
			m, err := NewMulticast(core.MulticastConfig{
				Processors: []core.Processor{branch},
				Parallel:   true,
				Streaming:  streaming,
				Executor:   pool,
				Logger:     testLogger(),
			})
			require.NoError(t, err)

			err = m.Process(context.Background(), core.NewMessage("X"))
			assert.ErrorIs(t, err, core.ErrPoolShutdown)
			assert.ErrorIs(t, err, core.ErrEngineUnavailable)
			assert.Equal(t, int32(0), branch.calls.Load())
		})
	}
}

// rejectingExecutor refuses every task with a fixed error
type rejectingExecutor struct{ err error }

func (e rejectingExecutor) Submit(func()) error { return e.err }

func TestMulticastSubmitRejectedForOtherReasons(t *testing.T) {
	full := errors.New("queue full")
	m, err := NewMulticast(core.MulticastConfig{
		Processors: []core.Processor{suffixBranch(0, 0)},
		Parallel:   true,
		Executor:   rejectingExecutor{err: full},
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	err = m.Process(context.Background(), core.NewMessage("X"))
	assert.ErrorIs(t, err, full)
	assert.NotErrorIs(t, err, core.ErrEngineUnavailable)
}

func TestMulticastStopDuringParallelProcessIsUnavailable(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := core.ProcessorFunc(func(ctx context.Context, msg *core.Message) error {
		close(started)
		<-release
		return nil
	})

	// One worker: the first branch occupies it, and Stop lands before
	// the remaining branches are submitted
	stopped := make(chan struct{})
	gate := &gatedExecutor{pool: NewWorkerPool(1), afterFirst: started, wait: stopped}

	m, err := NewMulticast(core.MulticastConfig{
		Processors: []core.Processor{blocker, suffixBranch(1, 0)},
		Parallel:   true,
		Executor:   gate,
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Process(context.Background(), core.NewMessage("X")) }()

	<-started
	require.NoError(t, m.Stop(context.Background()))
	gate.pool.Shutdown()
	close(stopped)
	close(release)

	err = <-done
	assert.ErrorIs(t, err, core.ErrEngineUnavailable)
}

// gatedExecutor holds back every submission after the first until wait is
// closed, so a shutdown can be ordered between them
type gatedExecutor struct {
	pool       *WorkerPool
	afterFirst <-chan struct{}
	wait       <-chan struct{}
	submitted  atomic.Int32
}

func (g *gatedExecutor) Submit(task func()) error {
	if g.submitted.Add(1) > 1 {
		<-g.afterFirst
		<-g.wait
	}
	return g.pool.Submit(task)
}

func TestMulticastConcurrentInvocationsShareEngine(t *testing.T) {
	m := newTestMulticast(t, core.ModeParallel, aggregate.Concat(","),
		suffixBranch(0, time.Millisecond), suffixBranch(1, 0), suffixBranch(2, 0))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prefix := "m" + strconv.Itoa(i) + "-"
			msg := core.NewMessage(prefix)
			if err := m.Process(context.Background(), msg); err != nil {
				errs <- err
				return
			}
			if want := prefix + "0," + prefix + "1," + prefix + "2"; msg.Body != want {
				errs <- fmt.Errorf("expected %q, got %q", want, msg.Body)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestMulticastString(t *testing.T) {
	m := newTestMulticast(t, core.ModeSequential, nil, &MockProcessor{name: "a"}, &MockProcessor{name: "b"})
	assert.Equal(t, "Multicast[a, b]", m.String())
	assert.Equal(t, "test", m.Name())
}
