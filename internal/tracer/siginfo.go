package tracer

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SigInfo is the slice of siginfo_t that internal/remotecall needs: which
// signal is pending and, for a fault, the faulting address. unix.Siginfo
// only exposes Signo/Errno/Code as named fields and leaves the rest of the
// kernel union as opaque padding, so si_addr is decoded here directly out
// of the raw struct bytes at the fixed offset the sigfault member of
// siginfo_t's union occupies on every 64-bit Linux ABI this engine
// targets.
type SigInfo struct {
	Signo int32
	Code  int32
	Addr  uint64
}

const sigfaultAddrOffset = 16

// golang.org/x/sys/unix has no PtraceGetSiginfo wrapper, only the raw
// PTRACE_GETSIGINFO request constant and the unix.Siginfo struct layout;
// the call is made directly through the ptrace syscall, the same pattern
// the vendored PtraceGetRegSetArm64/SetRegSetArm64 helpers use internally
// (request, pid, addr, data-pointer).
func ptraceGetSigInfo(pid int) (SigInfo, error) {
	var raw unix.Siginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(unix.PTRACE_GETSIGINFO), uintptr(pid), 0, uintptr(unsafe.Pointer(&raw)), 0, 0)
	if errno != 0 {
		return SigInfo{}, errno
	}

	bytes := (*[unsafe.Sizeof(raw)]byte)(unsafe.Pointer(&raw))[:]
	addr := uint64(0)
	if len(bytes) >= sigfaultAddrOffset+8 {
		addr = binary.LittleEndian.Uint64(bytes[sigfaultAddrOffset : sigfaultAddrOffset+8])
	}

	return SigInfo{Signo: raw.Signo, Code: raw.Code, Addr: addr}, nil
}
