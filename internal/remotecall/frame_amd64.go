//go:build amd64

package remotecall

import (
	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/tracer"
)

// breakpointInstructionSize is the length of "int3" on x86_64; a trapped
// breakpoint's saved pc points one byte past int3, matching the teacher's
// checkBreakpoint (dbg.go) which subtracts the same offset going the other
// direction. advanceOverBreakpoint moves it one byte further, over the
// one-byte nop that follows int3 in internal/heapwalk's payload.
const breakpointInstructionSize = 1

// setupCallRegs arranges r to invoke funcAddr(args...) and resume at a
// null return address. x86_64's calling convention has no dedicated
// return-address register: the original source's register_setup_call
// comment notes "return_addr is ignored; caller is responsible for pushing
// it onto the stack," so the zero return slot is pushed onto the tracee's
// own stack here before the call.
func setupCallRegs(r *tracer.Regset, funcAddr uint64, args [6]uint64, mem *memaccess.Memory) error {
	r.Rdi, r.Rsi, r.Rdx, r.Rcx, r.R8, r.R9 = args[0], args[1], args[2], args[3], args[4], args[5]
	r.Rax = 0
	r.Rip = funcAddr

	newSP := r.Rsp - 8
	if err := mem.Write(newSP, make([]byte, 8)); err != nil {
		return err
	}
	r.Rsp = newSP
	return nil
}

func returnValue(r tracer.Regset) uint64 { return r.Rax }

func advanceOverBreakpoint(r *tracer.Regset) { r.Rip += breakpointInstructionSize }
