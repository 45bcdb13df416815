package core

import (
	"context"
	"fmt"
)

// Processor is a single downstream step a branch copy is routed through.
// It may mutate the message in place.
type Processor interface {
	Process(ctx context.Context, msg *Message) error
}

// ProcessorFunc adapts a plain function to the Processor interface
type ProcessorFunc func(ctx context.Context, msg *Message) error

// Process calls f(ctx, msg)
func (f ProcessorFunc) Process(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Named is implemented by processors that report a human-readable name
type Named interface {
	Name() string
}

// Service is implemented by processors that need start/stop signals.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Navigator exposes child processors for introspection, e.g. visualization
// of nested multicasts.
type Navigator interface {
	// Next returns a snapshot of the child processors, or nil if there are none.
	Next() []Processor

	// HasNext reports whether there are any child processors.
	HasNext() bool
}

// Executor runs submitted tasks asynchronously.
// Implementations must run every accepted task exactly once.
type Executor interface {
	Submit(task func()) error
}

// ProcessorName returns a display name for p
func ProcessorName(p Processor) string {
	switch v := p.(type) {
	case nil:
		return "<nil>"
	case Named:
		return v.Name()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%T", p)
	}
}
