package resume

import "fmt"

// Verify classifies a finished copy by the destination size observed after
// the sink was closed. Only an exact match counts as complete.
func Verify(finalSize, expectedTotal int64) error {
	if finalSize != expectedTotal {
		return fmt.Errorf("%w: destination has %d bytes, want %d", ErrVerificationFailed, finalSize, expectedTotal)
	}
	return nil
}
