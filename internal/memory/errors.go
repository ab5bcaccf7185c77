package memory

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Transport layers translate these to status codes;
// everything else surfaces as a storage error (HTTP 500 / tool error).
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrFeatureDisabled      = errors.New("feature disabled")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrCorruptLedger        = errors.New("corrupt ledger entry")
)

// invalidArgf wraps ErrInvalidArgument with a caller-facing message.
func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
