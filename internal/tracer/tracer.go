// Package tracer drives the ptrace(2) state machine for one tracee: attach,
// wait, continue, single-step, and register access. It mirrors the
// teacher's TypeDbg (dbg.go) state transitions and error formatting.
// Register access on arm64 uses PTRACE_GETREGSET/SETREGSET with
// NT_PRSTATUS, since PTRACE_GETREGS/SETREGS do not exist there; on amd64
// it uses PTRACE_GETREGS/SETREGS and does not issue the regset requests.
package tracer

import (
	"sync"

	"golang.org/x/sys/unix"

	"remoteinspect/internal/rerr"
)

// State is where a Tracer believes its tracee currently is.
type State int

const (
	StateDetached State = iota
	StateStopped
	StateRunning
	StateExited
)

// Tracer owns the ptrace relationship with exactly one tracee.
type Tracer struct {
	mu    sync.Mutex
	pid   int
	state State
	rpc   *rpcWorker
}

// Attach ptrace-attaches to an already-running process and waits for the
// resulting group-stop, mirroring the teacher's Attach(pid).
func Attach(pid int) (*Tracer, error) {
	if pid <= 0 {
		return nil, rerr.New(rerr.KindIllegalArgument, errInvalidPid)
	}

	t := &Tracer{pid: pid, rpc: newRPCWorker()}

	if err := rpcCallErr(t.rpc, func() error {
		return unix.PtraceAttach(pid)
	}); err != nil {
		t.rpc.stop()
		return nil, formatPtraceError("attach", pid, err)
	}

	if _, err := t.wait(); err != nil {
		_ = rpcCallErr(t.rpc, func() error { return unix.PtraceDetach(pid) })
		t.rpc.stop()
		return nil, err
	}

	return t, nil
}

// Pid returns the tracee's pid.
func (t *Tracer) Pid() int { return t.pid }

// State reports the tracer's last-observed tracee state.
func (t *Tracer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Detach releases the tracee, letting it resume freely.
func (t *Tracer) Detach() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := rpcCallErr(t.rpc, func() error {
		return unix.PtraceDetach(t.pid)
	})
	t.rpc.stop()
	t.state = StateDetached
	if err != nil {
		return formatPtraceError("detach", t.pid, err)
	}
	return nil
}

// Continue resumes the tracee with PTRACE_CONT.
func (t *Tracer) Continue() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := rpcCallErr(t.rpc, func() error {
		return unix.PtraceCont(t.pid, 0)
	}); err != nil {
		return formatPtraceError("continue", t.pid, err)
	}
	t.state = StateRunning
	return nil
}

// SingleStep resumes the tracee for exactly one instruction.
func (t *Tracer) SingleStep() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := rpcCallErr(t.rpc, func() error {
		return unix.PtraceSingleStep(t.pid)
	}); err != nil {
		return formatPtraceError("single-step", t.pid, err)
	}
	t.state = StateRunning
	return nil
}

// Interrupt group-stops a tracee under PTRACE_SEIZE semantics. This engine
// always attaches with PTRACE_ATTACH, so Interrupt is provided for parity
// with the teacher but is only meaningful once a seized-attach mode is
// added; until then it returns KindIllegalArgument.
func (t *Tracer) Interrupt() error {
	return rerr.New(rerr.KindIllegalArgument, errInterruptUnsupported)
}

// Wait blocks until the tracee changes state (stop, exit, or signal).
func (t *Tracer) Wait() (unix.WaitStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wait()
}

// wait must be called with t.mu held.
func (t *Tracer) wait() (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	err := rpcCallErr(t.rpc, func() error {
		for {
			_, err := unix.Wait4(t.pid, &ws, 0, nil)
			if err == unix.EINTR {
				continue
			}
			return err
		}
	})
	if err != nil {
		return 0, formatPtraceError("wait", t.pid, err)
	}

	switch {
	case ws.Exited(), ws.Signaled():
		t.state = StateExited
	case ws.Stopped():
		t.state = StateStopped
	}
	return ws, nil
}

// GetSigInfo reads the pending signal's siginfo_t via PTRACE_GETSIGINFO,
// needed by internal/remotecall to confirm a synthesized call landed on
// the expected SIGSEGV-at-null-return-address sentinel.
func (t *Tracer) GetSigInfo() (SigInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return rpcCall(t.rpc, func() (SigInfo, error) {
		return ptraceGetSigInfo(t.pid)
	})
}

func formatPtraceError(op string, pid int, err error) error {
	switch err {
	case unix.ESRCH:
		return rerr.WithName(rerr.KindProcessNotFound, err, op)
	case unix.EPERM:
		return rerr.WithName(rerr.KindPermissionDenied, err, op)
	case unix.EBUSY:
		return rerr.WithName(rerr.KindAttachFailed, err, op)
	default:
		return rerr.WithName(rerr.KindAttachFailed, err, op)
	}
}
