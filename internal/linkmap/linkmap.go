// Package linkmap walks a live process's dynamic linker state to discover
// every loaded module and its load bias, the way dalehamel's loader
// inspector walks r_debug/link_map for the ebpf-profiler's Ruby backend.
// The structure layouts below (r_debug, link_map) mirror that walker.
package linkmap

import (
	"encoding/binary"

	"remoteinspect/internal/elfbin"
	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/procfs"
	"remoteinspect/internal/rerr"
)

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// Module is one entry of the dynamic linker's loaded-object chain.
type Module struct {
	LoadBias uint64
	Name     string
}

const (
	maxPhdrs      = 64
	maxDynEntries = 256
	maxModules    = 4096
	maxModuleName = 4096
)

// rDebug mirrors struct r_debug as maintained by the dynamic linker,
// addressed via the DT_DEBUG dynamic tag. The trailing Loader/LdLoaded
// pair reflects the bionic/Android layout; on glibc targets they simply
// read back as zero and are never consulted.
type rDebug struct {
	Version  int32
	_        int32
	LinkMap  uint64
	LdBrk    uint64
	State    int32
	_        int32
	LdBase   uint64
	Loader   uint64
	LdLoaded int32
	_        int32
}

const rDebugSize = 4 + 4 + 8 + 8 + 4 + 4 + 8 + 8 + 4 + 4

// linkMapNode mirrors struct link_map.
type linkMapNode struct {
	Addr uint64
	Name uint64
	Ld   uint64
	Next uint64
	Prev uint64
}

const linkMapNodeSize = 8 * 5

// Walk discovers every module currently loaded into the process identified
// by exePath (the target's /proc/<pid>/exe) and pid, returning one Module
// per link_map entry in load order. 32-bit targets are refused: the
// link_map layout above only matches the 64-bit ABI.
func Walk(mem *memaccess.Memory, auxv procfs.Auxv, exePath string) ([]Module, error) {
	exe, err := elfbin.Open(exePath)
	if err != nil {
		return nil, err
	}
	defer exe.Close()

	if !exe.IsElf64() {
		return nil, rerr.New(rerr.KindIllegalArgument, errUnsupported32Bit)
	}

	phdrAddr, err := auxv.Get(procfs.AtPhdr)
	if err != nil {
		return nil, err
	}
	phnum, err := auxv.Get(procfs.AtPhnum)
	if err != nil {
		return nil, err
	}
	if phnum > maxPhdrs {
		phnum = maxPhdrs
	}

	// File offset 0 of the executable is mapped at AT_PHDR - e_phoff.
	loadAddr := phdrAddr - exe.Header.Phoff

	dynAddr, err := findDynamicVaddr(mem, phdrAddr, phnum, loadAddr)
	if err != nil {
		return nil, err
	}

	debugAddr, err := findDebugStructAddr(mem, dynAddr)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, rDebugSize)
	if err := mem.ReadExact(debugAddr, raw); err != nil {
		return nil, err
	}
	rd := decodeRDebug(raw)

	return walkLinkMapChain(mem, rd.LinkMap)
}

// findDynamicVaddr returns the tracee address of the executable's sole
// PT_DYNAMIC segment, rebased by loadAddr minus the lowest PT_LOAD vaddr.
func findDynamicVaddr(mem *memaccess.Memory, phdrAddr, phnum, loadAddr uint64) (uint64, error) {
	buf := make([]byte, int(phnum)*elfbin.ProgHeaderSize64)
	if _, err := mem.Read(phdrAddr, buf); err != nil {
		return 0, err
	}
	var baseVaddr, dynVaddr uint64
	haveLoad, haveDyn := false, false
	for i := uint64(0); i < phnum; i++ {
		ph := elfbin.DecodeProgHeader64(buf[i*elfbin.ProgHeaderSize64 : (i+1)*elfbin.ProgHeaderSize64])
		switch ph.Type {
		case elfbin.PtLoad:
			if !haveLoad || ph.Vaddr < baseVaddr {
				baseVaddr, haveLoad = ph.Vaddr, true
			}
		case elfbin.PtDynamic:
			if haveDyn {
				return 0, rerr.New(rerr.KindMalformedElf, errMultipleDynamic)
			}
			dynVaddr, haveDyn = ph.Vaddr, true
		}
	}
	if !haveDyn {
		return 0, rerr.New(rerr.KindMalformedElf, errNoDynamicSegment)
	}
	return loadAddr - baseVaddr + dynVaddr, nil
}

func findDebugStructAddr(mem *memaccess.Memory, dynAddr uint64) (uint64, error) {
	const dynEntrySize = 16
	buf := make([]byte, maxDynEntries*dynEntrySize)
	if _, err := mem.Read(dynAddr, buf); err != nil {
		return 0, err
	}
	for _, d := range elfbin.DecodeDyn64(buf) {
		if d.Tag == elfbin.DtDebug {
			if d.Val == 0 {
				return 0, rerr.New(rerr.KindMalformedElf, errDebugNotReady)
			}
			return d.Val, nil
		}
	}
	return 0, rerr.New(rerr.KindMalformedElf, errNoDtDebug)
}

func decodeRDebug(raw []byte) rDebug {
	return rDebug{
		Version:  int32(le32(raw[0:4])),
		LinkMap:  le64(raw[8:16]),
		LdBrk:    le64(raw[16:24]),
		State:    int32(le32(raw[24:28])),
		LdBase:   le64(raw[32:40]),
		Loader:   le64(raw[40:48]),
		LdLoaded: int32(le32(raw[48:52])),
	}
}

func walkLinkMapChain(mem *memaccess.Memory, head uint64) ([]Module, error) {
	var out []Module
	addr := head
	for i := 0; addr != 0 && i < maxModules; i++ {
		raw := make([]byte, linkMapNodeSize)
		if err := mem.ReadExact(addr, raw); err != nil {
			return nil, err
		}
		node := linkMapNode{
			Addr: le64(raw[0:8]),
			Name: le64(raw[8:16]),
			Ld:   le64(raw[16:24]),
			Next: le64(raw[24:32]),
			Prev: le64(raw[32:40]),
		}

		name := ""
		if node.Name != 0 {
			s, err := mem.ReadCString(node.Name, maxModuleName)
			if err == nil {
				name = s
			}
		}
		out = append(out, Module{LoadBias: node.Addr, Name: name})
		addr = node.Next
	}
	return out, nil
}
