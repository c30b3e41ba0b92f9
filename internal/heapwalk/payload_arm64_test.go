//go:build arm64

package heapwalk

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/arm64/arm64asm"
)

// TestCallbackPayloadDecodesToExpectedInstructions disassembles the
// hand-written callback instruction by instruction (every AArch64
// instruction is 4 bytes) and checks every word decodes cleanly and that
// none of them are a call-like instruction (BL/BLR/SVC): the callback must
// never call out to anything else, only branch within itself.
func TestCallbackPayloadDecodesToExpectedInstructions(t *testing.T) {
	denied := []string{"BL", "BLR", "SVC", "HVC", "SMC"}

	buf := callbackPayload
	require.Zero(t, len(buf)%4, "AArch64 instructions are always 4 bytes")

	sawBrk, sawRet := false, false
	for off := 0; off < len(buf); off += 4 {
		word := binary.LittleEndian.Uint32(buf[off : off+4])
		inst, err := arm64asm.Decode(wordBytes(word))
		require.NoErrorf(t, err, "failed to decode at offset %d", off)

		op := strings.ToUpper(inst.Op.String())
		for _, bad := range denied {
			assert.NotEqualf(t, bad, op, "callback must never call out: found %q at offset %d", op, off)
		}
		if strings.HasPrefix(op, "BRK") {
			sawBrk = true
		}
		if strings.HasPrefix(op, "RET") {
			sawRet = true
		}
	}

	assert.True(t, sawBrk, "callback must retain its buffer-full trap")
	assert.True(t, sawRet, "callback must return to malloc_iterate")
}

func wordBytes(w uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, w)
	return b
}
