package pointcloud

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration marks configuration that is rejected before any
// point is processed: unknown descriptor, unsupported criterion or a
// non-positive radius or step.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrMissingField is matched by every *MissingFieldError via errors.Is.
var ErrMissingField = errors.New("missing prerequisite field")

// InvalidConfigf returns an error wrapping ErrInvalidConfiguration.
func InvalidConfigf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// MissingFieldError reports a stage reading a field that is not in the
// table. Producer names the stage that would have written it.
type MissingFieldError struct {
	Field    string
	Stage    string
	Producer string
}

func (e *MissingFieldError) Error() string {
	if e.Producer == "" {
		return fmt.Sprintf("stage %q requires field %q which no stage produces", e.Stage, e.Field)
	}
	return fmt.Sprintf("stage %q requires field %q; run stage %q first", e.Stage, e.Field, e.Producer)
}

// Is lets errors.Is(err, ErrMissingField) match.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
