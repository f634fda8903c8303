package resume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	require.NoError(t, Verify(1000, 1000))
	require.NoError(t, Verify(0, 0))
	require.ErrorIs(t, Verify(999, 1000), ErrVerificationFailed)
	require.ErrorIs(t, Verify(1001, 1000), ErrVerificationFailed)
}
