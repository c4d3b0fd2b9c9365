// Package od derives origin-destination networks from ordered device pings: transition
// extraction, dwell/window filtering, aggregation and normalization.
package od

import (
	"errors"
	"fmt"
)

// ErrEmptyPopulation is returned when a scope has no distinct devices to normalize by.
// Batch callers skip the scope and record a warning.
var ErrEmptyPopulation = errors.New("od: scope has zero distinct devices")

// ConfigurationError reports invalid or missing required input. It is fatal for a run and
// is raised before any unit executes.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError returns a *ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidWindowError reports a resolved window whose start is after its end.
type InvalidWindowError struct {
	Window Window
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window %q: start %d after end %d", e.Window.Name, e.Window.Start, e.Window.End)
}

// UpstreamIOError wraps a failure reading pings or writing a network for one scope.
type UpstreamIOError struct {
	Op  string
	Err error
}

func (e *UpstreamIOError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamIOError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is (or wraps) a *ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
