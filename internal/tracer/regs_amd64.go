//go:build amd64

package tracer

import (
	"golang.org/x/sys/unix"

	"remoteinspect/internal/rerr"
)

// Regset is the native register-set representation for this architecture.
// amd64 has no PTRACE_GETREGSET/SETREGSET pair in golang.org/x/sys/unix;
// only arm64 does, since GETREGS/SETREGS already cover amd64 without a
// NT_PRSTATUS note. This side uses PtraceGetRegsAmd64/PtraceSetRegsAmd64
// directly, the same opcodes the teacher's regs.go uses via the
// architecture-generic unix.PtraceRegs alias.
type Regset = unix.PtraceRegsAmd64

// GetRegs reads the tracee's current general-purpose registers.
func (t *Tracer) GetRegs() (Regset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return rpcCall(t.rpc, func() (Regset, error) {
		var r Regset
		if err := unix.PtraceGetRegsAmd64(t.pid, &r); err != nil {
			return Regset{}, rerr.New(rerr.KindRegisterAccessFailed, err)
		}
		return r, nil
	})
}

// SetRegs writes back a full register set, e.g. after internal/remotecall
// has built a synthesized call frame.
func (t *Tracer) SetRegs(r Regset) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return rpcCallErr(t.rpc, func() error {
		if err := unix.PtraceSetRegsAmd64(t.pid, &r); err != nil {
			return rerr.New(rerr.KindRegisterAccessFailed, err)
		}
		return nil
	})
}

// PC returns the instruction pointer from a register set.
func PC(r Regset) uint64 { return r.Rip }

// SetPC sets the instruction pointer in a register set.
func SetPC(r *Regset, v uint64) { r.Rip = v }

// SP returns the stack pointer from a register set.
func SP(r Regset) uint64 { return r.Rsp }

// SetSP sets the stack pointer in a register set.
func SetSP(r *Regset, v uint64) { r.Rsp = v }
