//go:build arm64

package remotecall

import (
	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/tracer"
)

// breakpointInstructionSize is the length of "brk #0x0" on arm64.
const breakpointInstructionSize = 4

// setupCallRegs arranges r to invoke funcAddr(args...) and resume at a
// null return address, written straight into the link register: arm64 has
// a dedicated return-address register, unlike x86_64, so no stack
// manipulation is needed here.
func setupCallRegs(r *tracer.Regset, funcAddr uint64, args [6]uint64, mem *memaccess.Memory) error {
	for i := 0; i < 6; i++ {
		r.Regs[i] = args[i]
	}
	r.Pc = funcAddr
	r.Regs[30] = 0
	return nil
}

func returnValue(r tracer.Regset) uint64 { return r.Regs[0] }

func advanceOverBreakpoint(r *tracer.Regset) { r.Pc += breakpointInstructionSize }
