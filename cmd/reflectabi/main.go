// Command reflectabi exposes the engine to an external C caller (the
// reflection library, built separately) as the five callbacks it demands
// of a debugger: QueryDataLayout, Free, ReadBytes, GetStringLength, and
// GetSymbolAddress. Built with -buildmode=c-shared, matching the teacher's
// own use of cgo in disass.go and ebpf/ebpf.go for talking to a C ABI.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"remoteinspect/internal/session"
)

// handles maps an opaque context value back to the Session it names. cgo
// forbids passing a live Go pointer across the C boundary and getting it
// back unchanged, so the "context" the reflection library holds is really
// just an integer key reinterpreted as a pointer value, never dereferenced
// on either side.
var (
	handlesMu  sync.Mutex
	handles    = map[uintptr]*session.Session{}
	nextHandle = uintptr(1)
)

func registerSession(s *session.Session) unsafe.Pointer {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	h := nextHandle
	nextHandle++
	handles[h] = s
	return unsafe.Pointer(h) //nolint:govet // opaque integer handle, not a real pointer
}

func sessionFor(ctx unsafe.Pointer) *session.Session {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	return handles[uintptr(ctx)]
}

//export ReflectabiOpen
func ReflectabiOpen(pid C.int) unsafe.Pointer {
	s, err := session.Open(int(pid))
	if err != nil {
		return nil
	}
	return registerSession(s)
}

//export ReflectabiClose
func ReflectabiClose(ctx unsafe.Pointer) {
	handlesMu.Lock()
	s, ok := handles[uintptr(ctx)]
	delete(handles, uintptr(ctx))
	handlesMu.Unlock()
	if ok {
		_ = s.Close()
	}
}

//export QueryDataLayout
func QueryDataLayout(ctx unsafe.Pointer, queryKind C.int, _ unsafe.Pointer, out *C.uint64_t) C.int {
	s := sessionFor(ctx)
	if s == nil || out == nil {
		return 0
	}
	v, ok := s.QueryDataLayout(session.DataLayoutQuery(queryKind))
	if !ok {
		return 0
	}
	*out = C.uint64_t(v)
	return 1
}

//export Free
func Free(handle unsafe.Pointer, bytes unsafe.Pointer, size C.uint64_t) {
	if bytes != nil {
		C.free(bytes)
	}
}

//export ReadBytes
func ReadBytes(ctx unsafe.Pointer, addr C.uint64_t, size C.uint64_t, _ unsafe.Pointer) unsafe.Pointer {
	s := sessionFor(ctx)
	if s == nil || size == 0 {
		return nil
	}
	data, err := s.ReadBytes(uint64(addr), uint64(size))
	if err != nil {
		return nil
	}
	buf := C.malloc(C.size_t(len(data)))
	if buf == nil {
		return nil
	}
	C.memcpy(buf, unsafe.Pointer(&data[0]), C.size_t(len(data)))
	return buf
}

//export GetStringLength
func GetStringLength(ctx unsafe.Pointer, addr C.uint64_t) C.uint64_t {
	s := sessionFor(ctx)
	if s == nil {
		return 0
	}
	n, err := s.GetStringLength(uint64(addr))
	if err != nil {
		return 0
	}
	return C.uint64_t(n)
}

//export GetSymbolAddress
func GetSymbolAddress(ctx unsafe.Pointer, namePtr *C.char, nameLen C.uint64_t) C.uint64_t {
	s := sessionFor(ctx)
	if s == nil || namePtr == nil {
		return 0
	}
	name := C.GoBytes(unsafe.Pointer(namePtr), C.int(nameLen))
	addr, err := s.GetSymbolAddress(name)
	if err != nil {
		return 0
	}
	return C.uint64_t(addr)
}

func main() {} // required by -buildmode=c-shared, never runs
