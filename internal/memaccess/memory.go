// Package memaccess reads and writes a traced process's address space
// through process_vm_readv/process_vm_writev, the same syscalls used by
// mem99-dl-go's PTraceTool and by opentelemetry-ebpf-profiler's
// ProcessVirtualMemory. Unlike PTRACE_PEEKDATA/POKEDATA (used by the
// teacher's mem.go for single words), these syscalls move an arbitrary
// number of bytes in one call and do not require the caller to be the
// ptrace tracer, which matters once remote calls need the memory accessor
// concurrently with the tracer-identity worker.
package memaccess

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"remoteinspect/internal/rerr"
)

// Memory is a readable/writable view of one process's address space.
type Memory struct {
	Pid int
}

// New returns a Memory accessor for pid. No handle is acquired; every call
// performs its own process_vm_readv/writev.
func New(pid int) *Memory { return &Memory{Pid: pid} }

// ReadAt reads the target's address space with io.ReaderAt's method
// signature. Unlike the io.ReaderAt contract, a short read returns a nil
// error, exactly as Read does; only a zero-byte transfer fails.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	n, err := m.Read(uint64(off), p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Read fills as much of buf as it can from the target's address space
// starting at addr and returns the count actually transferred. A short
// read is not an error: the requested range may run past the end of a
// mapped region, which callers that overscan a fixed-size structure (e.g.
// internal/linkmap scanning a bounded number of dynamic-section entries)
// rely on. Only a zero-byte transfer is reported as a failure.
func (m *Memory) Read(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(m.Pid, local, remote, 0)
	if err != nil {
		return n, rerr.WithAddrSize(rerr.KindMemoryReadFailed, err, addr, uint64(len(buf)))
	}
	if n == 0 {
		return 0, rerr.WithAddrSize(rerr.KindMemoryReadFailed, errShortXfer, addr, uint64(len(buf)))
	}
	return n, nil
}

// ReadExact fills buf entirely, failing if the target returns fewer bytes
// than requested. Callers that need a guaranteed-complete struct or array
// (rather than an acceptable prefix) opt into this instead of Read.
func (m *Memory) ReadExact(addr uint64, buf []byte) error {
	n, err := m.Read(addr, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return rerr.WithAddrSize(rerr.KindMemoryReadFailed, errShortXfer, addr, uint64(len(buf)))
	}
	return nil
}

// Write copies data into the target's address space starting at addr.
func (m *Memory) Write(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(data)}}
	n, err := unix.ProcessVMWritev(m.Pid, local, remote, 0)
	if err != nil {
		return rerr.WithAddrSize(rerr.KindMemoryWriteFailed, err, addr, uint64(len(data)))
	}
	if n != len(data) {
		return rerr.WithAddrSize(rerr.KindMemoryWriteFailed, errShortXfer, addr, uint64(len(data)))
	}
	return nil
}

// ReadUint64 reads one little-endian uint64 at addr. A short transfer is a
// failure here: there is no partial uint64.
func (m *Memory) ReadUint64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.ReadExact(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUint32 reads one little-endian uint32 at addr.
func (m *Memory) ReadUint32(addr uint64) (uint32, error) {
	var buf [4]byte
	if err := m.ReadExact(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadArray reads up to count consecutive little-endian uint64 words
// starting at addr, as used when walking arrays of pointers (e.g.
// auxv-derived tables). A region that ends before count words are
// available returns the prefix of whole words that did transfer rather
// than failing outright; only a zero-word transfer is an error.
func (m *Memory) ReadArray(addr uint64, count int) ([]uint64, error) {
	buf := make([]byte, 8*count)
	n, err := m.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	words := n / 8
	if words == 0 {
		return nil, rerr.WithAddrSize(rerr.KindMemoryReadFailed, errShortXfer, addr, uint64(len(buf)))
	}
	out := make([]uint64, words)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out, nil
}

// defaultStringChunk is the chunk size ReadCString starts each new read at
// before halving on failure.
const defaultStringChunk = 64

// ReadCString reads a NUL-terminated string starting at addr, reading in
// chunks of up to defaultStringChunk bytes so a single stray unmapped page
// does not force reading the whole remainder of memory. A chunk read that
// straddles the end of a mapped region is retried at half the chunk size,
// down to a single byte, before giving up; this lets a string that ends
// right at a page boundary still be read in full instead of failing the
// whole call on one oversized, partially-unmapped chunk.
func (m *Memory) ReadCString(addr uint64, maxLen int) (string, error) {
	var out []byte
	for len(out) < maxLen {
		want := defaultStringChunk
		if remain := maxLen - len(out); remain < want {
			want = remain
		}

		buf, err := m.readChunkWithHalving(addr+uint64(len(out)), want)
		if err != nil {
			return "", err
		}
		if idx := indexZero(buf); idx >= 0 {
			out = append(out, buf[:idx]...)
			return string(out), nil
		}
		out = append(out, buf...)
	}
	return string(out), nil
}

// readChunkWithHalving reads exactly size bytes at addr, and on failure
// retries the same starting address at half the size, down to one byte,
// returning whatever it managed to read. A single-byte read that still
// fails is a hard failure.
func (m *Memory) readChunkWithHalving(addr uint64, size int) ([]byte, error) {
	for size > 1 {
		buf := make([]byte, size)
		if n, err := m.Read(addr, buf); err == nil {
			return buf[:n], nil
		}
		size /= 2
	}
	buf := make([]byte, 1)
	n, err := m.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// SizeofPointer is the tracee pointer width this engine assumes; 32-bit
// targets are refused before reaching this package (see internal/linkmap).
const SizeofPointer = 8
