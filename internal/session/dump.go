package session

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"remoteinspect/internal/procfs"
)

const defaultDumpWidth = 80

// termWidth mirrors the teacher's hLine: ask the terminal how wide it is and
// fall back to a fixed width when out isn't one (piped output, a test's
// os.Pipe, CI).
func termWidth(out *os.File) int {
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return defaultDumpWidth
	}
	w, _, err := term.GetSize(int(out.Fd()))
	if err != nil || w <= 0 {
		return defaultDumpWidth
	}
	return w
}

func dumpHeader(w io.Writer, width int, title string) {
	pad := width - len(title) - 2
	if pad < 0 {
		pad = 0
	}
	left := pad / 2
	right := pad - left
	fmt.Fprintf(w, "%s[%s]%s\n", strings.Repeat("-", left), title, strings.Repeat("-", right))
}

func truncateToWidth(line string, width int) string {
	if width <= 3 || len(line) <= width {
		return line
	}
	return line[:width-3] + "..."
}

// DumpMemoryMap pretty-prints the tracee's current /proc/pid/maps snapshot,
// one region per line, right-sizing the pathname to the terminal out is
// attached to exactly as utils.go's hLine right-sized its section banners.
// Best effort: a read failure is reported, nothing already written is
// rolled back.
func (s *Session) DumpMemoryMap(out *os.File) error {
	maps, err := procfs.LoadMaps(s.pid)
	if err != nil {
		return err
	}

	width := termWidth(out)
	dumpHeader(out, width, fmt.Sprintf("memory map: pid %d", s.pid))
	for _, m := range maps {
		line := fmt.Sprintf("%016x-%016x %s %08x %s", m.Start, m.End, m.Perms, m.Offset, m.Pathname)
		fmt.Fprintln(out, truncateToWidth(line, width))
	}
	return nil
}

// DumpSymbols pretty-prints every symbol this Session has indexed across all
// modules, sorted by address, truncated the same way DumpMemoryMap truncates
// its pathname column.
func (s *Session) DumpSymbols(out *os.File) error {
	width := termWidth(out)
	dumpHeader(out, width, fmt.Sprintf("symbols: pid %d", s.pid))
	for _, hit := range s.symbols.All() {
		line := fmt.Sprintf("%016x-%016x %-24s %s", hit.Range.Start, hit.Range.End, hit.Module, hit.Name)
		fmt.Fprintln(out, truncateToWidth(line, width))
	}
	return nil
}
