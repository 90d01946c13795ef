package plinko

import (
	"errors"
	"fmt"
)

var (
	ErrConfig         = errors.New("plinko: invalid configuration")
	ErrInvalidOutcome = errors.New("plinko: invalid outcome")
	ErrRunActive      = errors.New("plinko: a run is active or has not been reset")
	ErrTornDown       = errors.New("plinko: simulation torn down")
)

// ConfigError reports a rejected board or simulation configuration.
// It matches ErrConfig with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("plinko: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// OutcomeError reports a run request whose multiplier (or bucket) does not
// exist on the configured board. It matches ErrInvalidOutcome.
type OutcomeError struct {
	Multiplier float64
	Reason     string
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("plinko: invalid outcome %g: %s", e.Multiplier, e.Reason)
}

func (e *OutcomeError) Is(target error) bool {
	return target == ErrInvalidOutcome
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
