// Package aggregate provides ready-made aggregation strategies for multicast.
//
// The engine stores the first branch result as-is and calls a strategy only
// from the second result on, so every strategy here receives a non-nil
// previous message. Concat and Collect depend on the aggregation order;
// in streaming mode that order is the completion order of the branches.
package aggregate

import (
	"fmt"

	"github.com/creastat/multicast/core"
)

// propertyCollected marks a result whose body already is a collected list
const propertyCollected = "aggregate.collected"

// Latest keeps the most recently aggregated branch result
func Latest() core.AggregationStrategy {
	return core.AggregationFunc(func(_, branch *core.Message) (*core.Message, error) {
		return branch, nil
	})
}

// Concat joins the bodies of all branch results as strings, separated by sep
func Concat(sep string) core.AggregationStrategy {
	return core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		previous.Body = bodyString(previous.Body) + sep + bodyString(branch.Body)
		return previous, nil
	})
}

// Collect gathers the bodies of all branch results into a []any body
func Collect() core.AggregationStrategy {
	return core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		if _, ok := previous.Property(propertyCollected); !ok {
			previous.Body = []any{previous.Body}
			previous.SetProperty(propertyCollected, true)
		}

		bodies, ok := previous.Body.([]any)
		if !ok {
			return nil, fmt.Errorf("collected body has unexpected type %T", previous.Body)
		}
		previous.Body = append(bodies, branch.Body)
		return previous, nil
	})
}

// MergeHeaders unions the headers of all branch results; on conflicts the
// later branch wins. Bodies are left to inner.
func MergeHeaders(inner core.AggregationStrategy) core.AggregationStrategy {
	return core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		headers := make(map[string]any, len(previous.Headers)+len(branch.Headers))
		for k, v := range previous.Headers {
			headers[k] = v
		}
		for k, v := range branch.Headers {
			headers[k] = v
		}

		merged, err := inner.Aggregate(previous, branch)
		if err != nil {
			return nil, err
		}
		merged.Headers = headers
		return merged, nil
	})
}

// SurfaceFailures makes a branch failure visible on the merged result.
// If the result of inner carries no failure, the first failure of the two
// inputs is copied onto it.
func SurfaceFailures(inner core.AggregationStrategy) core.AggregationStrategy {
	return core.AggregationFunc(func(previous, branch *core.Message) (*core.Message, error) {
		failure := previous.Failure()
		if failure == nil {
			failure = branch.Failure()
		}

		merged, err := inner.Aggregate(previous, branch)
		if err != nil {
			return nil, err
		}
		if merged.Failure() == nil && failure != nil {
			merged.SetFailure(failure)
		}
		return merged, nil
	})
}

// FromMergeStrategy returns the strategy registered under name
func FromMergeStrategy(name core.MergeStrategy) (core.AggregationStrategy, error) {
	switch name {
	case core.MergeStrategyCollect:
		return Collect(), nil
	case core.MergeStrategyLastOnly:
		return Latest(), nil
	case core.MergeStrategyConcat:
		return Concat(""), nil
	default:
		return nil, fmt.Errorf("unknown merge strategy %q", name)
	}
}

func bodyString(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	case []byte:
		return string(b)
	case fmt.Stringer:
		return b.String()
	default:
		return fmt.Sprint(b)
	}
}
