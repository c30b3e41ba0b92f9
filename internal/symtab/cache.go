// Package symtab indexes the symbols loaded from every module in a
// process, supporting both name->address lookup and address->symbol
// lookup. Guarded by a single mutex the way the teacher's bp.go guards its
// breakpoint table with ptraceMutex: readers and the rare re-index after a
// dlopen never need finer-grained locking here.
package symtab

import (
	"sort"
	"sync"

	"remoteinspect/internal/elfbin"
	"remoteinspect/internal/rerr"
)

// Range is a symbol's [Start, End) address span.
type Range struct {
	Start uint64
	End   uint64
}

// Hit is one resolved symbol, carrying the module it came from.
type Hit struct {
	Module string
	Name   string
	Range  Range
}

// Cache indexes symbols by (module, name) for name lookups and by address
// for reverse lookups.
type Cache struct {
	mu sync.RWMutex

	moduleOrder []string
	byModule    map[string]map[string]Range

	flat      []Hit // sorted by Range.Start once built
	flatDirty bool
}

// New returns an empty symbol cache.
func New() *Cache {
	return &Cache{byModule: make(map[string]map[string]Range)}
}

// AddModule indexes every resolved symbol of one module. Symbols are
// expected to already be rebased by the module's load bias (see
// elfbin.File.LoadSymbols). Calling AddModule again for a module that was
// already indexed replaces its entries and moves it to the end of the
// module order, matching how a reload after a dlopen would be handled.
func (c *Cache) AddModule(module string, syms []elfbin.ResolvedSymbol) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byModule[module]; exists {
		c.removeModuleOrderLocked(module)
	}
	c.moduleOrder = append(c.moduleOrder, module)

	byName := make(map[string]Range, len(syms))
	for _, s := range syms {
		// Later entries win on a name collision within one module;
		// elfbin.LoadSymbols returns duplicates in section order.
		byName[s.Name] = Range{Start: s.Start, End: s.End}
	}
	c.byModule[module] = byName
	c.flatDirty = true
}

func (c *Cache) removeModuleOrderLocked(module string) {
	for i, m := range c.moduleOrder {
		if m == module {
			c.moduleOrder = append(c.moduleOrder[:i], c.moduleOrder[i+1:]...)
			return
		}
	}
}

// Resolve looks up name across every indexed module in the order modules
// were added, returning the first match. When a name is defined in more
// than one module the result is intentionally order-dependent rather than
// an error: callers that care about a specific module should consult
// ResolveIn instead.
func (c *Cache) Resolve(name string) (Range, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, mod := range c.moduleOrder {
		if r, ok := c.byModule[mod][name]; ok {
			return r, true
		}
	}
	return Range{}, false
}

// ResolveIn looks up name within one specific module only.
func (c *Cache) ResolveIn(module, name string) (Range, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	syms, ok := c.byModule[module]
	if !ok {
		return Range{}, rerr.WithName(rerr.KindSymbolNotFound, nil, module)
	}
	r, ok := syms[name]
	if !ok {
		return Range{}, rerr.WithName(rerr.KindSymbolNotFound, nil, name)
	}
	return r, nil
}

// SymbolAt returns the symbol whose range contains addr, if any.
func (c *Cache) SymbolAt(addr uint64) (Hit, bool) {
	c.mu.Lock()
	c.rebuildFlatLocked()
	flat := c.flat
	c.mu.Unlock()

	i := sort.Search(len(flat), func(i int) bool { return flat[i].Range.Start > addr })
	if i == 0 {
		return Hit{}, false
	}
	h := flat[i-1]
	if addr < h.Range.Start || addr >= h.Range.End {
		return Hit{}, false
	}
	return h, true
}

// All returns every indexed symbol, sorted by address, for callers that want
// to enumerate the whole table rather than look up one name or address (the
// dump pretty-printers in internal/session are the only such caller today).
func (c *Cache) All() []Hit {
	c.mu.Lock()
	c.rebuildFlatLocked()
	flat := c.flat
	c.mu.Unlock()

	out := make([]Hit, len(flat))
	copy(out, flat)
	return out
}

func (c *Cache) rebuildFlatLocked() {
	if !c.flatDirty {
		return
	}
	flat := make([]Hit, 0)
	for _, mod := range c.moduleOrder {
		for name, r := range c.byModule[mod] {
			flat = append(flat, Hit{Module: mod, Name: name, Range: r})
		}
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].Range.Start < flat[j].Range.Start })
	c.flat = flat
	c.flatDirty = false
}
