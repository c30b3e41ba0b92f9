//go:build arm64

package remotecall

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/tracer"
)

func TestSetupCallRegsArm64(t *testing.T) {
	mem := memaccess.New(os.Getpid())

	var r tracer.Regset
	r.Regs[30] = 0xdeadbeef
	args := [6]uint64{1, 2, 3, 4, 5, 6}

	require.NoError(t, setupCallRegs(&r, 0x401000, args, mem))

	for i := 0; i < 6; i++ {
		assert.Equal(t, uint64(i+1), r.Regs[i])
	}
	assert.Equal(t, uint64(0x401000), r.Pc)
	assert.Equal(t, uint64(0), r.Regs[30], "lr must carry the null return sentinel")
}

func TestReturnValueArm64(t *testing.T) {
	var r tracer.Regset
	r.Regs[0] = 0x1234
	assert.Equal(t, uint64(0x1234), returnValue(r))
}

func TestAdvanceOverBreakpointArm64(t *testing.T) {
	r := tracer.Regset{Pc: 0x401000}
	advanceOverBreakpoint(&r)
	assert.Equal(t, uint64(0x401004), r.Pc)
}
