package rerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("ESRCH")
	err := WithAddr(KindMemoryReadFailed, cause, 0x1000)

	require.ErrorIs(t, err, err)
	assert.True(t, Is(err, KindMemoryReadFailed))
	assert.False(t, Is(err, KindMemoryWriteFailed))
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "memory read failed")
}

func TestErrorIsThroughWrap(t *testing.T) {
	base := New(KindSymbolNotFound, nil)
	wrapped := fmt.Errorf("resolving malloc: %w", base)

	assert.True(t, Is(wrapped, KindSymbolNotFound))
	assert.False(t, Is(wrapped, KindAttachFailed))
}

func TestKindStringIsStable(t *testing.T) {
	for k := KindUnknown; k <= KindIllegalArgument; k++ {
		assert.NotEmpty(t, k.String())
	}
}
