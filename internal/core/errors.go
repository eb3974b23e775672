package core

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is matched by every ConfigurationError.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a malformed workload: a negative bound, a
// duplicate or missing phase, an unknown actor type. It is always detected
// synchronously, at construction or at dispatch time.
type ConfigurationError struct {
	Message string
	// Cause is optional, e.g. the aggregated validation errors.
	Cause error
}

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Cause == nil {
		return "invalid configuration: " + e.Message
	}
	return "invalid configuration: " + e.Message + ": " + e.Cause.Error()
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}
