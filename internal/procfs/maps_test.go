package procfs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMemFs(t *testing.T) {
	t.Helper()
	prev := Fs
	Fs = afero.NewMemMapFs()
	t.Cleanup(func() { Fs = prev })
}

const sampleMaps = `00400000-00452000 r-xp 00000000 08:02 173521      /usr/bin/dbus-daemon
00651000-00652000 r--p 00051000 08:02 173521      /usr/bin/dbus-daemon
7f2a40000000-7f2a40021000 rw-p 00000000 00:00 0          [anon:libc_malloc]
7f2a40021000-7f2a40022000 rw-p 00000000 00:00 0          [anon:scudo:primary]
not a valid line at all
7ffed0000000-7ffed0021000 rw-p 00000000 00:00 0          [stack]
`

func TestLoadMapsParsesWellFormedLines(t *testing.T) {
	withMemFs(t)
	require.NoError(t, afero.WriteFile(Fs, "/proc/1234/maps", []byte(sampleMaps), 0644))

	entries, err := LoadMaps(1234)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, uint64(0x00400000), entries[0].Start)
	assert.Equal(t, uint64(0x00452000), entries[0].End)
	assert.Equal(t, "r-xp", entries[0].Perms.String())
	assert.Equal(t, "/usr/bin/dbus-daemon", entries[0].Pathname)

	assert.Equal(t, "[anon:libc_malloc]", entries[2].Pathname)
	assert.Equal(t, "[anon:scudo:primary]", entries[3].Pathname)
	assert.Equal(t, "[stack]", entries[4].Pathname)
}

func TestLoadMapsInvariants(t *testing.T) {
	withMemFs(t)
	require.NoError(t, afero.WriteFile(Fs, "/proc/1/maps", []byte(sampleMaps), 0644))

	entries, err := LoadMaps(1)
	require.NoError(t, err)

	for i, e := range entries {
		assert.Less(t, e.Start, e.End, "entry %d", i)
		assert.Len(t, e.Perms.String(), 4)
		for j, other := range entries {
			if i == j {
				continue
			}
			overlap := e.Start < other.End && other.Start < e.End
			assert.False(t, overlap, "entries %d and %d overlap", i, j)
		}
	}
}

func TestLoadMapsMissingProcess(t *testing.T) {
	withMemFs(t)
	_, err := LoadMaps(99999)
	assert.Error(t, err)
}

func TestParseAuxv(t *testing.T) {
	var buf bytes.Buffer
	write := func(tag AuxvTag, val uint64) {
		var pair [16]byte
		binary.LittleEndian.PutUint64(pair[0:8], uint64(tag))
		binary.LittleEndian.PutUint64(pair[8:16], val)
		buf.Write(pair[:])
	}
	write(AtPhdr, 0x400040)
	write(AtPhent, 56)
	write(AtPhnum, 9)
	write(AtNull, 0)
	// trailing garbage after AT_NULL must be ignored
	write(AuxvTag(999), 0xdeadbeef)

	av, err := parseAuxv(&buf)
	require.NoError(t, err)

	phdr, err := av.Get(AtPhdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x400040), phdr)

	_, err = av.Get(AuxvTag(999))
	assert.Error(t, err)
}
