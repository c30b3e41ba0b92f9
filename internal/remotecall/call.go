// Package remotecall synthesizes a call into a traced process: build a
// register frame that invokes an arbitrary function with up to six
// integer/pointer arguments, run it to completion (optionally pausing on
// breakpoint traps along the way for a caller-supplied handshake), and
// recover its return value. The control flow below is a direct
// translation of ptrace_call_remote_function_with_trap_callback's state
// machine: snapshot registers, set up the call, loop on waitpid handling
// trap callbacks, confirm the call landed on the null-return-address
// sentinel, then restore the caller's original registers.
package remotecall

import (
	"context"

	"golang.org/x/sys/unix"

	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/rerr"
	"remoteinspect/internal/tracer"
)

// TrapCallback is invoked each time the tracee stops on SIGTRAP before the
// call has completed, e.g. to drain a heap-walk callback's ring buffer.
// Returning an error aborts the call.
type TrapCallback func() error

// Call invokes funcAddr(args...) inside the tracee owned by tr, returning
// the function's result register. ctx is only consulted before the call
// is issued; once PTRACE_CONT has been sent there is no way to safely
// abandon a synthesized call mid-flight without leaving the tracee's
// register state inconsistent, so ctx is not polled inside the wait loop.
func Call(ctx context.Context, tr *tracer.Tracer, mem *memaccess.Memory, funcAddr uint64, args [6]uint64, trap TrapCallback) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	backup, err := tr.GetRegs()
	if err != nil {
		return 0, err
	}

	call := backup
	if err := setupCallRegs(&call, funcAddr, args, mem); err != nil {
		return 0, err
	}
	if err := tr.SetRegs(call); err != nil {
		return 0, err
	}
	if err := tr.Continue(); err != nil {
		return 0, err
	}

	final, ws, err := runUntilSentinel(tr, trap)
	if err != nil {
		_ = tr.SetRegs(backup)
		return 0, err
	}

	info, sigErr := tr.GetSigInfo()
	restoreErr := tr.SetRegs(backup)

	if sigErr != nil {
		return 0, sigErr
	}
	if !ws.Stopped() || unix.Signal(ws.StopSignal()) != unix.SIGSEGV || info.Addr != 0 {
		return 0, rerr.WithSignal(rerr.KindUnexpectedSignal, nil, int(ws.StopSignal()), info.Addr)
	}
	if restoreErr != nil {
		return 0, restoreErr
	}

	return returnValue(final), nil
}

// runUntilSentinel drives the tracee until it either hits the null-return
// sentinel or stops for a reason the caller must be told about. On every
// SIGTRAP while trap is set, trap runs, the pc is advanced past the
// breakpoint instruction, and the tracee is resumed.
func runUntilSentinel(tr *tracer.Tracer, trap TrapCallback) (tracer.Regset, unix.WaitStatus, error) {
	for {
		ws, err := tr.Wait()
		if err != nil {
			return tracer.Regset{}, ws, err
		}
		if ws.Exited() || ws.Signaled() {
			return tracer.Regset{}, ws, rerr.New(rerr.KindRemoteCallFailed, errTraceeGone)
		}
		if !ws.Stopped() {
			continue
		}
		if trap != nil && unix.Signal(ws.StopSignal()) == unix.SIGTRAP {
			if err := trap(); err != nil {
				return tracer.Regset{}, ws, err
			}
			regs, err := tr.GetRegs()
			if err != nil {
				return tracer.Regset{}, ws, err
			}
			advanceOverBreakpoint(&regs)
			if err := tr.SetRegs(regs); err != nil {
				return tracer.Regset{}, ws, err
			}
			if err := tr.Continue(); err != nil {
				return tracer.Regset{}, ws, err
			}
			continue
		}

		regs, err := tr.GetRegs()
		if err != nil {
			return tracer.Regset{}, ws, err
		}
		return regs, ws, nil
	}
}
