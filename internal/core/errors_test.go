package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Is(t *testing.T) {
	err := NewConfigurationError("Need non-negative number of iterations. Gave %d", -1)

	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrInvalidConfiguration))
	assert.Equal(t, "invalid configuration: Need non-negative number of iterations. Gave -1", err.Error())
}

func TestConfigurationError_Cause(t *testing.T) {
	cause := errors.New("duplicate phase 2")
	err := &ConfigurationError{Message: "actor Loader", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "duplicate phase 2")
}
