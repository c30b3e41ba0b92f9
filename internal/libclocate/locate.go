// Package libclocate finds the remote address of a named libc function
// inside a traced process.
//
// The algorithm is the one swift-inspect's CLib/remote.c uses
// (remote_dlsym/find_remote_addr): dlopen the library into this process
// and dlsym the function locally, find the /proc/self/maps region that
// local address falls inside, then find the region in the tracee's own
// /proc/<pid>/maps with the same length, permissions, and pathname, and
// return that region's start plus the same intra-region offset. This
// sidesteps ever needing to open or parse the tracee's ELF file at all:
// the function's offset inside its mapped library is the same in both
// processes, only the load address differs.
package libclocate

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
*/
import "C"

import (
	"os"
	"unsafe"

	"remoteinspect/internal/procfs"
	"remoteinspect/internal/rerr"
)

// DefaultLibcNames are the dlopen candidates tried in order until one
// resolves, covering glibc's soname and the bare name bionic and musl
// both also accept.
var DefaultLibcNames = []string{"libc.so.6", "libc.so"}

// dlsymLocal dlopens libName into this process and dlsyms funcName out of
// it, returning the function's address in this process's own address
// space.
func dlsymLocal(libName, funcName string) (uintptr, error) {
	cLib := C.CString(libName)
	defer C.free(unsafe.Pointer(cLib))

	lib := C.dlopen(cLib, C.RTLD_LAZY)
	if lib == nil {
		return 0, rerr.WithName(rerr.KindSymbolNotFound, errDlopenFailed, libName)
	}

	cFunc := C.CString(funcName)
	defer C.free(unsafe.Pointer(cFunc))

	sym := C.dlsym(lib, cFunc)
	if sym == nil {
		return 0, rerr.WithName(rerr.KindSymbolNotFound, errDlsymFailed, funcName)
	}
	return uintptr(sym), nil
}

// findByAddr returns the first executable, file-backed entry in maps
// containing addr, the Go form of remote.c's maps_iterate_find_by_addr.
// A resolved function's address must land in such a region; anything
// else (an anonymous mapping, a data segment) means addr was not really
// inside the library's code.
func findByAddr(maps []procfs.MapEntry, addr uint64) (procfs.MapEntry, bool) {
	for _, m := range maps {
		if addr >= m.Start && addr < m.End && m.Perms.Execute && m.Pathname != "" {
			return m, true
		}
	}
	return procfs.MapEntry{}, false
}

// findEquivalent returns the first entry in maps with the same length,
// permissions, and pathname as match, the Go form of
// maps_iterate_find_equivalent.
func findEquivalent(maps []procfs.MapEntry, match procfs.MapEntry) (procfs.MapEntry, bool) {
	matchLen := match.End - match.Start
	for _, m := range maps {
		if m.End-m.Start == matchLen && m.Perms == match.Perms && m.Pathname == match.Pathname {
			return m, true
		}
	}
	return procfs.MapEntry{}, false
}

// findRemoteAddr translates localAddr, an address inside this process,
// into the equivalent address inside traceeMaps's process: find the
// region containing localAddr in this process's own maps, find the
// structurally matching region in traceeMaps, and apply the same
// intra-region offset. This is find_remote_addr from remote.c.
func findRemoteAddr(localAddr uint64, traceeMaps []procfs.MapEntry) (uint64, error) {
	selfMaps, err := procfs.LoadMaps(os.Getpid())
	if err != nil {
		return 0, err
	}

	localEntry, ok := findByAddr(selfMaps, localAddr)
	if !ok {
		return 0, rerr.WithAddr(rerr.KindSymbolNotFound, errNoLocalRegion, localAddr)
	}

	remoteEntry, ok := findEquivalent(traceeMaps, localEntry)
	if !ok {
		return 0, rerr.WithAddr(rerr.KindSymbolNotFound, errNoRemoteRegion, localAddr)
	}

	offset := localAddr - localEntry.Start
	return remoteEntry.Start + offset, nil
}

// LocateInLibc resolves funcName's address inside the tracee described by
// traceeMaps, trying each name in libNames as a dlopen candidate (in
// order) until one both opens and exposes funcName; an empty libNames
// falls back to DefaultLibcNames.
func LocateInLibc(traceeMaps []procfs.MapEntry, funcName string, libNames []string) (uint64, error) {
	if len(libNames) == 0 {
		libNames = DefaultLibcNames
	}

	var lastErr error = errNoLibcModule
	for _, name := range libNames {
		localAddr, err := dlsymLocal(name, funcName)
		if err != nil {
			lastErr = err
			continue
		}
		return findRemoteAddr(uint64(localAddr), traceeMaps)
	}
	return 0, rerr.WithName(rerr.KindSymbolNotFound, lastErr, funcName)
}
