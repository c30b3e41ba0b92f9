// Package procfs parses /proc/<pid>/maps and /proc/<pid>/auxv, the two
// procfs-resident structures the rest of the engine bootstraps from.
//
// Reads go through an afero.Fs so unit tests can exercise the parser
// against synthetic fixtures instead of a live pid (grounded on
// dalehamel-opentelemetry-ebpf-profiler's use of afero for the same
// /proc/<pid>/auxv read).
package procfs

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/afero"

	"remoteinspect/internal/rerr"
	"remoteinspect/internal/rlog"
)

// Perms is the four-character rwxp permission flag set from a maps line.
type Perms struct {
	Read    bool
	Write   bool
	Execute bool
	Private bool
}

func (p Perms) String() string {
	b := [4]byte{'-', '-', '-', '-'}
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	if p.Private {
		b[3] = 'p'
	} else {
		b[3] = 's'
	}
	return string(b[:])
}

// MapEntry is one line of /proc/<pid>/maps.
type MapEntry struct {
	Start    uint64
	End      uint64
	Perms    Perms
	Offset   uint64
	Device   string
	Inode    uint64
	Pathname string
}

// Fs is the filesystem maps/auxv are read through. It defaults to
// afero.NewOsFs(); tests inject an afero.NewMemMapFs() with fixture files.
var Fs afero.Fs = afero.NewOsFs()

func mapsPath(pid int) string { return fmt.Sprintf("/proc/%d/maps", pid) }
func auxvPath(pid int) string { return fmt.Sprintf("/proc/%d/auxv", pid) }

// LoadMaps parses /proc/<pid>/maps into a sequence of entries in file
// order (the kernel lists regions by ascending start address). Malformed lines are skipped with a warning, never aborting
// the whole read.
func LoadMaps(pid int) ([]MapEntry, error) {
	f, err := Fs.Open(mapsPath(pid))
	if err != nil {
		return nil, rerr.New(rerr.KindProcessNotFound, err)
	}
	defer f.Close()

	var entries []MapEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		entry, ok := parseMapsLine(line)
		if !ok {
			rlog.Default.Warn().Int("pid", pid).Int("line", lineNo).Str("text", line).
				Msg("skipping malformed /proc/pid/maps line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, rerr.New(rerr.KindProcessNotFound, err)
	}
	return entries, nil
}

// parseMapsLine parses one "maps" line:
//
//	start-end perms offset dev:dev inode pathname
//
// pathname may be absent, may contain spaces, and may be a bracketed
// anonymization such as "[anon:scudo:123]".
func parseMapsLine(line string) (MapEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return MapEntry{}, false
	}

	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return MapEntry{}, false
	}
	start, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return MapEntry{}, false
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return MapEntry{}, false
	}

	permStr := fields[1]
	if len(permStr) != 4 {
		return MapEntry{}, false
	}
	perms := Perms{
		Read:    permStr[0] == 'r',
		Write:   permStr[1] == 'w',
		Execute: permStr[2] == 'x',
		Private: permStr[3] == 'p',
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return MapEntry{}, false
	}

	device := fields[3]

	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return MapEntry{}, false
	}

	pathname := ""
	if len(fields) > 5 {
		// Reconstruct the original whitespace-containing tail: skip the
		// first five fields in the raw line rather than re-joining
		// fields, so embedded spaces in e.g. "[anon:scudo: foo]" survive.
		rest := line
		for _, f := range fields[:5] {
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
			rest = rest[len(f):]
		}
		pathname = strings.TrimSpace(rest)
	}

	return MapEntry{
		Start:    start,
		End:      end,
		Perms:    perms,
		Offset:   offset,
		Device:   device,
		Inode:    inode,
		Pathname: pathname,
	}, true
}
