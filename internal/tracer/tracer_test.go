package tracer

import (
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spawnStopped starts a short-lived child with a plain exec.Command (no
// PTRACE_TRACEME) and returns its pid. The child is left running; tests
// attach to it with PTRACE_ATTACH, the same path a real target process
// would take.
func spawnStopped(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("/bin/sleep", "5")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd.Process.Pid
}

// canPtrace probes whether this sandbox permits PTRACE_ATTACH at all;
// many CI/container environments deny CAP_SYS_PTRACE, so integration
// tests skip rather than fail when it is unavailable.
func canPtrace(t *testing.T) int {
	t.Helper()
	pid := spawnStopped(t)
	time.Sleep(20 * time.Millisecond)
	if err := unix.PtraceAttach(pid); err != nil {
		t.Skipf("ptrace unavailable in this sandbox: %v", err)
	}
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, 0, nil)
	_ = unix.PtraceDetach(pid)
	return pid
}

func TestAttachWaitDetach(t *testing.T) {
	pid := canPtrace(t)

	tr, err := Attach(pid)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, tr.State())
	assert.Equal(t, pid, tr.Pid())

	require.NoError(t, tr.Detach())
	assert.Equal(t, StateDetached, tr.State())
}

func TestGetSetRegsRoundTrip(t *testing.T) {
	pid := canPtrace(t)

	tr, err := Attach(pid)
	require.NoError(t, err)
	defer tr.Detach()

	regs, err := tr.GetRegs()
	require.NoError(t, err)
	originalPC := PC(regs)
	assert.NotZero(t, originalPC)

	require.NoError(t, tr.SetRegs(regs))

	regs2, err := tr.GetRegs()
	require.NoError(t, err)
	assert.Equal(t, originalPC, PC(regs2))
}

func TestAttachRejectsInvalidPid(t *testing.T) {
	_, err := Attach(0)
	assert.Error(t, err)
	_, err = Attach(-1)
	assert.Error(t, err)
}
