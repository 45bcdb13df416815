package multicast

import (
	"fmt"

	"github.com/creastat/multicast/core"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Message string
	Details string
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// ValidateConfig checks a multicast configuration before an engine is built
func ValidateConfig(config *core.MulticastConfig) error {
	if config == nil {
		return ValidationError{
			Message: "multicast validation failed",
			Details: "no configuration",
		}
	}

	// Check every branch has a processor
	for i, p := range config.Processors {
		if p == nil {
			return ValidationError{
				Message: "multicast validation failed",
				Details: fmt.Sprintf("processor %d is nil", i),
			}
		}
	}

	if config.PoolSize < 0 {
		return ValidationError{
			Message: "multicast validation failed",
			Details: fmt.Sprintf("pool size must not be negative, got %d", config.PoolSize),
		}
	}

	if config.ShutdownWait < 0 {
		return ValidationError{
			Message: "multicast validation failed",
			Details: fmt.Sprintf("shutdown wait must not be negative, got %s", config.ShutdownWait),
		}
	}

	return nil
}
