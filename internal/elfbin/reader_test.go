package elfbin

import (
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMiniElf64 assembles a minimal, valid ELF64 relocatable-shaped file
// with one SHT_SYMTAB section (linked to one SHT_STRTAB) containing two
// defined symbols and one undefined symbol, laid out by hand rather than
// produced by a toolchain.
func buildMiniElf64(t *testing.T) []byte {
	t.Helper()
	le := binary.LittleEndian

	const (
		ehdrSize = 64
		shdrSize = 64
		symSize  = 24
	)

	strtab := []byte("\x00foo\x00bar\x00")
	// symbol 0 is the mandatory null entry.
	syms := make([]byte, symSize*3)
	putSym := func(i int, nameOff uint32, value, size uint64, shndx uint16) {
		off := i * symSize
		le.PutUint32(syms[off:off+4], nameOff)
		syms[off+4] = 0x12 // STB_GLOBAL<<4 | STT_FUNC
		le.PutUint16(syms[off+6:off+8], shndx)
		le.PutUint64(syms[off+8:off+16], value)
		le.PutUint64(syms[off+16:off+24], size)
	}
	putSym(1, 1, 0x1000, 0x20, 1) // "foo"
	putSym(2, 5, 0x2000, 0x10, 1) // "bar"

	strtabOff := uint64(ehdrSize)
	symtabOff := strtabOff + uint64(len(strtab))
	shoff := symtabOff + uint64(len(syms))

	// section 0: SHT_NULL, section 1: strtab, section 2: symtab (linked to 1)
	shdrs := make([]byte, shdrSize*3)
	putShdr := func(i int, typ SectionType, offset, size uint64, link uint32) {
		off := i * shdrSize
		le.PutUint32(shdrs[off+4:off+8], uint32(typ))
		le.PutUint64(shdrs[off+24:off+32], offset)
		le.PutUint64(shdrs[off+32:off+40], size)
		le.PutUint32(shdrs[off+40:off+44], link)
	}
	putShdr(1, ShtStrtab, strtabOff, uint64(len(strtab)), 0)
	putShdr(2, ShtSymtab, symtabOff, uint64(len(syms)), 1)

	buf := make([]byte, shoff)
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = byte(Class64)
	le.PutUint64(buf[32:40], shoff) // e_phoff (unused, zero phnum)
	le.PutUint64(buf[40:48], shoff) // e_shoff
	le.PutUint16(buf[58:60], shdrSize)
	le.PutUint16(buf[60:62], 3)
	le.PutUint16(buf[62:64], 0)

	copy(buf[strtabOff:], strtab)
	copy(buf[symtabOff:], syms)
	buf = append(buf, shdrs...)
	return buf
}

func withFixture(t *testing.T, path string, data []byte) {
	t.Helper()
	prev := Fs
	Fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(Fs, path, data, 0644))
	t.Cleanup(func() { Fs = prev })
}

func TestOpenRejectsBadMagic(t *testing.T) {
	withFixture(t, "/bin/notelf", []byte("not an elf file at all"))
	_, err := Open("/bin/notelf")
	assert.Error(t, err)
}

func TestOpenAndLoadSymbols(t *testing.T) {
	data := buildMiniElf64(t)
	withFixture(t, "/usr/lib/libfoo.so", data)

	f, err := Open("/usr/lib/libfoo.so")
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.IsElf64())
	assert.EqualValues(t, 3, f.Header.Shnum)

	syms, err := f.LoadSymbols(0x5000)
	require.NoError(t, err)
	require.Len(t, syms, 2)

	byName := map[string]ResolvedSymbol{}
	for _, s := range syms {
		byName[s.Name] = s
	}
	foo, ok := byName["foo"]
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000+0x5000), foo.Start)
	assert.Equal(t, uint64(0x1000+0x20+0x5000), foo.End)

	bar, ok := byName["bar"]
	require.True(t, ok)
	assert.Equal(t, uint64(0x2000+0x5000), bar.Start)
}

func TestReadShdrRejectsOutOfRange(t *testing.T) {
	data := buildMiniElf64(t)
	withFixture(t, "/usr/lib/libfoo.so", data)

	f, err := Open("/usr/lib/libfoo.so")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.ReadShdr(99)
	assert.Error(t, err)
}

func TestDecodeDyn64StopsAtNull(t *testing.T) {
	le := binary.LittleEndian
	buf := make([]byte, 16*3)
	le.PutUint64(buf[0:8], uint64(DtDebug))
	le.PutUint64(buf[8:16], 0xdead)
	le.PutUint64(buf[16:24], uint64(DtNull))
	le.PutUint64(buf[24:32], 0)
	// trailing garbage must never be reached
	le.PutUint64(buf[32:40], 0xffffffffffffffff)

	entries := DecodeDyn64(buf)
	require.Len(t, entries, 2)
	assert.Equal(t, DtDebug, entries[0].Tag)
	assert.Equal(t, uint64(0xdead), entries[0].Val)
	assert.Equal(t, DtNull, entries[1].Tag)
}
