package libclocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remoteinspect/internal/procfs"
)

func TestFindByAddr(t *testing.T) {
	rx := procfs.Perms{Read: true, Execute: true, Private: true}
	maps := []procfs.MapEntry{
		{Start: 0x1000, End: 0x2000, Perms: rx, Pathname: "/lib/libc.so.6"},
		{Start: 0x2000, End: 0x3000, Perms: rx, Pathname: "/lib/libc.so.6"},
	}

	m, ok := findByAddr(maps, 0x2500)
	require.True(t, ok)
	assert.Equal(t, uint64(0x2000), m.Start)

	_, ok = findByAddr(maps, 0x9000)
	assert.False(t, ok)
}

func TestFindByAddrRejectsNonExecutableOrAnonymous(t *testing.T) {
	rw := procfs.Perms{Read: true, Write: true, Private: true}
	rx := procfs.Perms{Read: true, Execute: true, Private: true}

	// data segment: executable check fails
	_, ok := findByAddr([]procfs.MapEntry{{Start: 0x1000, End: 0x2000, Perms: rw, Pathname: "/lib/libc.so.6"}}, 0x1500)
	assert.False(t, ok)

	// anonymous executable mapping: file-backed check fails
	_, ok = findByAddr([]procfs.MapEntry{{Start: 0x1000, End: 0x2000, Perms: rx, Pathname: ""}}, 0x1500)
	assert.False(t, ok)
}

func TestFindEquivalent(t *testing.T) {
	rx := procfs.Perms{Read: true, Execute: true, Private: true}
	match := procfs.MapEntry{Start: 0x1000, End: 0x2000, Perms: rx, Pathname: "/lib/libc.so.6"}

	candidates := []procfs.MapEntry{
		{Start: 0x7f0000000000, End: 0x7f0000001000, Perms: rx, Pathname: "/lib/libc.so.6"},
		{Start: 0x7f0000001000, End: 0x7f0000002000, Perms: procfs.Perms{Read: true, Write: true, Private: true}, Pathname: "/lib/libc.so.6"},
	}

	got, ok := findEquivalent(candidates, match)
	require.True(t, ok)
	assert.Equal(t, uint64(0x7f0000000000), got.Start)
}

func TestFindEquivalentRequiresSameLengthPermsAndPath(t *testing.T) {
	rx := procfs.Perms{Read: true, Execute: true, Private: true}
	match := procfs.MapEntry{Start: 0x1000, End: 0x2000, Perms: rx, Pathname: "/lib/libc.so.6"}

	_, ok := findEquivalent([]procfs.MapEntry{
		{Start: 0x7f00, End: 0x7f00 + 0x2000, Perms: rx, Pathname: "/lib/libc.so.6"}, // wrong length
	}, match)
	assert.False(t, ok)

	_, ok = findEquivalent([]procfs.MapEntry{
		{Start: 0x7f00, End: 0x7f00 + 0x1000, Perms: rx, Pathname: "/lib/libm.so.6"}, // wrong pathname
	}, match)
	assert.False(t, ok)
}

func TestFindRemoteAddrNoLocalRegion(t *testing.T) {
	// localAddr 0 will never fall inside any real /proc/self/maps region,
	// so findByAddr fails before findEquivalent is even reached.
	_, err := findRemoteAddr(0, nil)
	assert.Error(t, err)
}

func TestLocateInLibcNoCandidateOpens(t *testing.T) {
	_, err := LocateInLibc(nil, "malloc", []string{"libc-does-not-exist.so.999"})
	assert.Error(t, err)
}
