package processors

import (
	"context"
	"fmt"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

// HistorySaver persists a message seen by a branch
type HistorySaver func(ctx context.Context, msg *core.Message) error

// HistoryProcessorConfig holds configuration for HistoryProcessor
type HistoryProcessorConfig struct {
	Saver HistorySaver

	// FailOnError turns saver errors into branch failures.
	// By default they are only logged.
	FailOnError bool

	Logger telemetry.Logger
}

// HistoryProcessor hands every message it receives to a saver, typically
// as a wire-tap branch next to the real work
type HistoryProcessor struct {
	config HistoryProcessorConfig
}

// NewHistoryProcessor creates a new HistoryProcessor
func NewHistoryProcessor(config HistoryProcessorConfig) *HistoryProcessor {
	config.Logger = withDefaultLogger(config.Logger)
	return &HistoryProcessor{
		config: config,
	}
}

// Name returns the processor name
func (s *HistoryProcessor) Name() string {
	return "history"
}

// Process implements core.Processor
func (s *HistoryProcessor) Process(ctx context.Context, msg *core.Message) error {
	logger := s.config.Logger.WithModule(s.Name())

	if s.config.Saver == nil {
		return nil
	}

	logger.Debug("Saving history", telemetry.String("message_id", msg.ID))

	if err := s.config.Saver(ctx, msg); err != nil {
		logger.Error("Failed to save history", telemetry.Err(err))
		if s.config.FailOnError {
			return fmt.Errorf("save history: %w", err)
		}
		// We don't fail the branch on save error, just log it
		return nil
	}

	logger.Debug("History saved successfully")
	return nil
}
