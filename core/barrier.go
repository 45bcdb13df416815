package core

// AggregationStrategy merges a branch result into the result so far.
// previous is never nil when called by the engine: the first branch result is
// stored as-is. Strategies used in streaming mode must tolerate any call order.
type AggregationStrategy interface {
	Aggregate(previous, branch *Message) (*Message, error)
}

// AggregationFunc adapts a plain function to the AggregationStrategy interface
type AggregationFunc func(previous, branch *Message) (*Message, error)

// Aggregate calls f(previous, branch)
func (f AggregationFunc) Aggregate(previous, branch *Message) (*Message, error) {
	return f(previous, branch)
}

// MergeStrategy names a built-in aggregation behaviour
type MergeStrategy string

const (
	// MergeStrategyCollect collects all branch bodies in aggregation order
	MergeStrategyCollect MergeStrategy = "collect"

	// MergeStrategyLastOnly keeps only the most recently aggregated branch
	MergeStrategyLastOnly MergeStrategy = "last-only"

	// MergeStrategyConcat joins string bodies in aggregation order
	MergeStrategyConcat MergeStrategy = "concat"
)
