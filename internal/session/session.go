// Package session is the engine's top-level handle: attach to a pid, walk
// its dynamic linker state and symbol tables once, and expose everything
// else (register/memory access, remote calls, heap walking, symbol
// resolution) through one object whose lifetime matches the ptrace
// attachment.
package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"remoteinspect/internal/elfbin"
	"remoteinspect/internal/heapwalk"
	"remoteinspect/internal/libclocate"
	"remoteinspect/internal/linkmap"
	"remoteinspect/internal/memaccess"
	"remoteinspect/internal/procfs"
	"remoteinspect/internal/rlog"
	"remoteinspect/internal/symtab"
	"remoteinspect/internal/tracer"
)

// Config holds the options a caller can override via functional options,
// the same pattern the teacher uses nowhere explicitly but that the rest
// of the example pack reaches for wherever a constructor takes more than
// two or three knobs.
type Config struct {
	Logger    zerolog.Logger
	LibcNames []string
}

// Option configures a Session at Open time.
type Option func(*Config)

// WithLogger overrides the package-default logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithLibcNames overrides the dlopen candidates tried, in order, when
// internal/libclocate resolves allocator entrypoints inside the tracee's
// libc.
func WithLibcNames(names []string) Option {
	return func(c *Config) { c.LibcNames = names }
}

func defaultConfig() Config {
	return Config{
		Logger:    rlog.Default,
		LibcNames: libclocate.DefaultLibcNames,
	}
}

// Session is an attached, introspectable view of one process.
type Session struct {
	pid     int
	cfg     Config
	tracer  *tracer.Tracer
	mem     *memaccess.Memory
	modules []linkmap.Module
	symbols *symtab.Cache
}

// Open attaches to pid, walks its loaded modules, and indexes every
// module's symbol table. The returned Session owns the ptrace attachment
// until Close is called.
func Open(pid int, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	tr, err := tracer.Attach(pid)
	if err != nil {
		return nil, err
	}

	mem := memaccess.New(pid)

	auxv, err := procfs.LoadAuxv(pid)
	if err != nil {
		_ = tr.Detach()
		return nil, err
	}

	exePath := fmt.Sprintf("/proc/%d/exe", pid)
	modules, err := linkmap.Walk(mem, auxv, exePath)
	if err != nil {
		_ = tr.Detach()
		return nil, err
	}

	s := &Session{
		pid:     pid,
		cfg:     cfg,
		tracer:  tr,
		mem:     mem,
		modules: modules,
		symbols: symtab.New(),
	}
	s.indexSymbols()

	return s, nil
}

func (s *Session) indexSymbols() {
	for _, m := range s.modules {
		if m.Name == "" {
			continue
		}
		f, err := elfbin.Open(m.Name)
		if err != nil {
			s.cfg.Logger.Warn().Str("module", m.Name).Err(err).Msg("skipping unreadable module while indexing symbols")
			continue
		}
		resolved, err := f.LoadSymbols(m.LoadBias)
		f.Close()
		if err != nil {
			s.cfg.Logger.Warn().Str("module", m.Name).Err(err).Msg("skipping module with malformed symbol table")
			continue
		}
		s.symbols.AddModule(m.Name, resolved)
	}
}

// Pid returns the attached process id.
func (s *Session) Pid() int { return s.pid }

// Modules returns every module discovered via the dynamic linker's
// link_map chain, in load order.
func (s *Session) Modules() []linkmap.Module { return s.modules }

// Tracer exposes the underlying ptrace state machine for callers that
// need lower-level control (single-stepping, raw register access).
func (s *Session) Tracer() *tracer.Tracer { return s.tracer }

// Memory exposes the underlying process_vm_readv/writev accessor.
func (s *Session) Memory() *memaccess.Memory { return s.mem }

// Close detaches from the tracee, letting it resume freely.
func (s *Session) Close() error { return s.tracer.Detach() }

// ResolveSymbol looks up name across every indexed module, first match in
// load order.
func (s *Session) ResolveSymbol(name string) (symtab.Range, bool) {
	return s.symbols.Resolve(name)
}

// Symbolicate returns the symbol whose range contains addr, if any. It
// composes the module walk and symbol cache this Session already built,
// rather than requiring a caller to do their own address-to-module-to-name
// lookup by hand.
func (s *Session) Symbolicate(addr uint64) (symtab.Hit, bool) {
	return s.symbols.SymbolAt(addr)
}

// WalkHeap enumerates every live heap allocation, reporting each to
// onAlloc as it is drained from the tracee.
func (s *Session) WalkHeap(ctx context.Context, onAlloc func(heapwalk.Allocation)) error {
	maps, err := procfs.LoadMaps(s.pid)
	if err != nil {
		return err
	}

	w := heapwalk.New(s.tracer, s.mem, s.cfg.LibcNames...)
	return w.Walk(ctx, maps, onAlloc)
}

// HeapAllocationContaining walks the heap looking for the one live
// allocation whose [Base, Base+Size) range contains addr. A single
// malloc_iterate region can report allocations after the match is found,
// so this still runs the full walk; callers doing many lookups should walk
// once themselves and build their own index instead of calling this
// repeatedly.
func (s *Session) HeapAllocationContaining(addr uint64) (heapwalk.Allocation, bool, error) {
	var found heapwalk.Allocation
	var ok bool
	err := s.WalkHeap(context.Background(), func(a heapwalk.Allocation) {
		if !ok && addr >= a.Base && addr < a.Base+a.Size {
			found, ok = a, true
		}
	})
	return found, ok, err
}
