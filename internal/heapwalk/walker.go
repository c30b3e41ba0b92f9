package heapwalk

import (
	"context"
	"encoding/binary"

	"golang.org/x/sys/unix"

	"remoteinspect/internal/libclocate"
	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/procfs"
	"remoteinspect/internal/remotecall"
	"remoteinspect/internal/rerr"
	"remoteinspect/internal/tracer"
)

const (
	protRead  = unix.PROT_READ
	protWrite = unix.PROT_WRITE
	protExec  = unix.PROT_EXEC
	mapAnon   = unix.MAP_ANONYMOUS
	mapPriv   = unix.MAP_PRIVATE
)

// Walker drives a single heap walk against one tracee.
type Walker struct {
	tr       *tracer.Tracer
	mem      *memaccess.Memory
	libNames []string
	mmap     uint64
	munmap   uint64
	disable  uint64
	enable   uint64
	iterate  uint64
	pageSize uint64
	resolved bool
}

// libc function names used by the driver. They are package-level and
// unexported; New has no option to change them (its variadic argument
// only lists the libraries to search).
var (
	symMmap          = "mmap"
	symMunmap        = "munmap"
	symMallocDisable = "malloc_disable"
	symMallocEnable  = "malloc_enable"
	symMallocIterate = "malloc_iterate"
)

// New returns a Walker that resolves its libc symbols lazily, on the first
// Walk call, against whichever tracee maps that call is given. libNames
// overrides the dlopen candidates tried for "this process's libc"; empty
// falls back to libclocate.DefaultLibcNames.
func New(tr *tracer.Tracer, mem *memaccess.Memory, libNames ...string) *Walker {
	return &Walker{
		tr:       tr,
		mem:      mem,
		libNames: libNames,
		pageSize: uint64(unix.Getpagesize()),
	}
}

// resolveSymbols locates every libc entrypoint the walker needs, using
// maps (the tracee's own /proc/<pid>/maps) to translate from this
// process's locally dlopen'd libc into the tracee's address space. It
// runs once per Walker; repeated Walk calls against the same tracee reuse
// the first resolution.
func (w *Walker) resolveSymbols(maps []procfs.MapEntry) error {
	if w.resolved {
		return nil
	}

	resolve := func(name string) (uint64, error) {
		return libclocate.LocateInLibc(maps, name, w.libNames)
	}

	var err error
	if w.mmap, err = resolve(symMmap); err != nil {
		return err
	}
	if w.munmap, err = resolve(symMunmap); err != nil {
		return err
	}
	if w.disable, err = resolve(symMallocDisable); err != nil {
		return err
	}
	if w.enable, err = resolve(symMallocEnable); err != nil {
		return err
	}
	if w.iterate, err = resolve(symMallocIterate); err != nil {
		return err
	}

	w.resolved = true
	return nil
}

// Walk disables concurrent allocator mutation, injects the callback
// payload, calls malloc_iterate once per matching heap region in maps, and
// reports every allocation it is handed to onAlloc. The allocator is
// re-enabled and both scratch pages are unmapped on every exit path, best
// effort, even if an earlier step failed.
func (w *Walker) Walk(ctx context.Context, maps []procfs.MapEntry, onAlloc func(Allocation)) error {
	if err := w.resolveSymbols(maps); err != nil {
		return err
	}

	dataPage, err := w.remoteMmap(ctx, w.pageSize, protRead|protWrite)
	if err != nil {
		return err
	}

	codeLen := pageAlign(uint64(len(callbackPayload)), w.pageSize)
	codePage, err := w.remoteMmap(ctx, codeLen, protRead|protWrite|protExec)
	if err != nil {
		w.bestEffortMunmap(ctx, dataPage, w.pageSize)
		return err
	}

	defer func() {
		w.bestEffortMunmap(ctx, codePage, codeLen)
		w.bestEffortMunmap(ctx, dataPage, w.pageSize)
	}()

	if err := w.initHeader(dataPage); err != nil {
		return err
	}
	if err := w.mem.Write(codePage, callbackPayload); err != nil {
		return rerr.WithAddr(rerr.KindMemoryWriteFailed, err, codePage)
	}

	if _, err := remotecall.Call(ctx, w.tr, w.mem, w.disable, [6]uint64{}, nil); err != nil {
		return err
	}
	defer func() {
		_, _ = remotecall.Call(context.Background(), w.tr, w.mem, w.enable, [6]uint64{}, nil)
	}()

	drain := func() error { return w.drain(dataPage, onAlloc) }

	for _, m := range maps {
		if !m.Perms.Read || !MatchesHeapRegion(m.Pathname) {
			continue
		}
		args := [6]uint64{m.Start, m.End - m.Start, codePage, dataPage}
		if _, err := remotecall.Call(ctx, w.tr, w.mem, w.iterate, args, drain); err != nil {
			return err
		}
		// Drain whatever the final (non-trapping) return left behind.
		if err := drain(); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) remoteMmap(ctx context.Context, length uint64, prot uint64) (uint64, error) {
	args := [6]uint64{0, length, prot, uint64(mapPriv | mapAnon), ^uint64(0), 0}
	addr, err := remotecall.Call(ctx, w.tr, w.mem, w.mmap, args, nil)
	if err != nil {
		return 0, err
	}
	if int64(addr) == -1 {
		return 0, rerr.New(rerr.KindRemoteCallFailed, errMmapFailed)
	}
	return addr, nil
}

func (w *Walker) bestEffortMunmap(ctx context.Context, addr, length uint64) {
	_, _ = remotecall.Call(ctx, w.tr, w.mem, w.munmap, [6]uint64{addr, length}, nil)
}

func (w *Walker) initHeader(dataPage uint64) error {
	header := make([]byte, headerSize*wordSize)
	binary.LittleEndian.PutUint64(header[maxValidIdx*wordSize:], w.pageSize/wordSize)
	binary.LittleEndian.PutUint64(header[nextFreeIdx*wordSize:], headerSize)
	if err := w.mem.Write(dataPage, header); err != nil {
		return rerr.WithAddr(rerr.KindMemoryWriteFailed, err, dataPage)
	}
	return nil
}

// drain reads every (base, size) pair the callback has written since the
// last drain, reports each to onAlloc, then resets the ring buffer.
func (w *Walker) drain(dataPage uint64, onAlloc func(Allocation)) error {
	next, err := w.mem.ReadUint64(dataPage + nextFreeIdx*wordSize)
	if err != nil {
		return err
	}
	count := int(next) - headerSize
	if count <= 0 {
		return nil
	}

	buf, err := w.mem.ReadArray(dataPage+headerSize*wordSize, count)
	if err != nil {
		return err
	}
	for i := 0; i+1 < len(buf); i += entrySize {
		onAlloc(Allocation{Base: buf[i], Size: buf[i+1]})
	}

	return w.mem.Write(dataPage+nextFreeIdx*wordSize, encodeU64(headerSize))
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func pageAlign(n, pageSize uint64) uint64 {
	if n == 0 {
		return pageSize
	}
	return ((n + pageSize - 1) / pageSize) * pageSize
}
