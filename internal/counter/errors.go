package counter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller mistakes; no state was changed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageFailure means the new state could not be persisted.
	// The in-memory state was left as it was before the call.
	ErrStorageFailure = errors.New("storage failure")

	// ErrStorageCorrupt means the persisted document could not be read at startup.
	ErrStorageCorrupt = errors.New("stored state is corrupt")

	// ErrPolicyMismatch means the stored period does not fit the configured
	// period policy. Switching policies with existing data is not supported.
	ErrPolicyMismatch = errors.New("stored period does not match the configured period policy")

	// ErrNotLoaded is returned when the engine is used before Load.
	ErrNotLoaded = errors.New("counter state not loaded")
)

func invalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
