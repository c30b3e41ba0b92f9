package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remoteinspect/internal/elfbin"
)

func TestResolveFirstMatchAcrossModules(t *testing.T) {
	c := New()
	c.AddModule("libc.so", []elfbin.ResolvedSymbol{
		{Name: "malloc", Start: 0x1000, End: 0x1010},
	})
	c.AddModule("libshim.so", []elfbin.ResolvedSymbol{
		{Name: "malloc", Start: 0x5000, End: 0x5010},
	})

	r, ok := c.Resolve("malloc")
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), r.Start, "first-added module wins on a name collision")

	r2, err := c.ResolveIn("libshim.so", "malloc")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5000), r2.Start)
}

func TestSymbolAtFindsContainingRange(t *testing.T) {
	c := New()
	c.AddModule("a.so", []elfbin.ResolvedSymbol{
		{Name: "foo", Start: 0x1000, End: 0x1010},
		{Name: "bar", Start: 0x2000, End: 0x2100},
	})

	hit, ok := c.SymbolAt(0x1005)
	require.True(t, ok)
	assert.Equal(t, "foo", hit.Name)

	_, ok = c.SymbolAt(0x1010) // End is exclusive
	assert.False(t, ok)

	_, ok = c.SymbolAt(0x3000)
	assert.False(t, ok)
}

func TestAddModuleReplacesAndReordersOnReload(t *testing.T) {
	c := New()
	c.AddModule("a.so", []elfbin.ResolvedSymbol{{Name: "x", Start: 1, End: 2}})
	c.AddModule("b.so", []elfbin.ResolvedSymbol{{Name: "x", Start: 10, End: 20}})

	r, _ := c.Resolve("x")
	assert.Equal(t, uint64(1), r.Start)

	// Reloading a.so moves it to the end of module order, so b.so now wins.
	c.AddModule("a.so", []elfbin.ResolvedSymbol{{Name: "x", Start: 1, End: 2}})
	r2, _ := c.Resolve("x")
	assert.Equal(t, uint64(10), r2.Start)
}

func TestResolveInMissingModule(t *testing.T) {
	c := New()
	_, err := c.ResolveIn("nope.so", "x")
	assert.Error(t, err)
}
