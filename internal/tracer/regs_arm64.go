//go:build arm64

package tracer

import (
	"golang.org/x/sys/unix"

	"remoteinspect/internal/rerr"
)

// Regset is the native register-set representation for this architecture.
// arm64 has no PTRACE_GETREGS/SETREGS; golang.org/x/sys/unix instead
// exposes PtraceGetRegSetArm64/PtraceSetRegSetArm64, which take the NT_*
// note type as their second argument and wrap PTRACE_GETREGSET/SETREGSET.
type Regset = unix.PtraceRegsArm64

// GetRegs reads the tracee's current general-purpose registers.
func (t *Tracer) GetRegs() (Regset, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return rpcCall(t.rpc, func() (Regset, error) {
		var r Regset
		if err := unix.PtraceGetRegSetArm64(t.pid, unix.NT_PRSTATUS, &r); err != nil {
			return Regset{}, rerr.New(rerr.KindRegisterAccessFailed, err)
		}
		return r, nil
	})
}

// SetRegs writes back a full register set.
func (t *Tracer) SetRegs(r Regset) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return rpcCallErr(t.rpc, func() error {
		if err := unix.PtraceSetRegSetArm64(t.pid, unix.NT_PRSTATUS, &r); err != nil {
			return rerr.New(rerr.KindRegisterAccessFailed, err)
		}
		return nil
	})
}

// PC returns the instruction pointer from a register set.
func PC(r Regset) uint64 { return r.Pc }

// SetPC sets the instruction pointer in a register set.
func SetPC(r *Regset, v uint64) { r.Pc = v }

// SP returns the stack pointer from a register set.
func SP(r Regset) uint64 { return r.Sp }

// SetSP sets the stack pointer in a register set.
func SetSP(r *Regset, v uint64) { r.Sp = v }

// LR returns the link register, used on arm64 to carry a remote call's
// return address directly rather than pushing it onto the stack.
func LR(r Regset) uint64 { return r.Regs[30] }

// SetLR sets the link register.
func SetLR(r *Regset, v uint64) { r.Regs[30] = v }
