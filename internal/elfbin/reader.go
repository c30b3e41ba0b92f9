// Package elfbin is a from-scratch ELF reader. The standard library's
// debug/elf is deliberately not used: this engine also needs to decode ELF
// program headers, dynamic entries, and symbol tables out of raw byte
// buffers read from a live tracee's memory (see internal/linkmap), and
// debug/elf exposes no seam for parsing anything but a whole io.ReaderAt
// over a complete file. Every accessor here is therefore built on plain
// byte-slice decoding so the same decode functions serve both the
// on-disk reader and, in linkmap, values read out of tracee memory.
package elfbin

import (
	"bytes"
	"io"

	"github.com/spf13/afero"

	"remoteinspect/internal/rerr"
	"remoteinspect/internal/rlog"
)

// Class is the ELF identification class (32 or 64 bit).
type Class uint8

const (
	ClassNone Class = 0
	Class32   Class = 1
	Class64   Class = 2
)

const eiNident = 16

// SectionType mirrors the sh_type field values this reader cares about.
type SectionType uint32

const (
	ShtNull   SectionType = 0
	ShtSymtab SectionType = 2
	ShtStrtab SectionType = 3
	ShtDynsym SectionType = 11
)

// ProgType mirrors the p_type values this reader cares about.
type ProgType uint32

const (
	PtLoad    ProgType = 1
	PtDynamic ProgType = 2
)

// Header is the ELF header normalized to 64-bit-wide fields regardless of
// the file's actual class.
type Header struct {
	Class     Class
	Type      uint16
	Machine   uint16
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// ProgHeader is a normalized program header.
type ProgHeader struct {
	Type   ProgType
	Offset uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Flags  uint32
}

// SectionHeader is a normalized section header.
type SectionHeader struct {
	Name    uint32
	Type    SectionType
	Addr    uint64
	Offset  uint64
	Size    uint64
	Link    uint32
	Entsize uint64
}

// Symbol is a normalized symbol table entry.
type Symbol struct {
	Name     uint32
	Value    uint64
	Size     uint64
	Shndx    uint16
	IsGlobal bool
}

const shnUndef = 0

// accessor decodes the class-specific on-disk layouts into the normalized
// structs above. There is exactly one implementation per class, selected
// once at Open() time, so no call site branches on class again.
type accessor interface {
	decodeHeader(raw []byte) (Header, error)
	progHeaderSize() int
	decodeProgHeader(raw []byte) ProgHeader
	sectionHeaderSize() int
	decodeSectionHeader(raw []byte) SectionHeader
	symbolSize() int
	decodeSymbol(raw []byte) Symbol
}

// File is an opened ELF file with typed access to its headers and tables.
type File struct {
	Path   string
	Header Header

	f   afero.File
	acc accessor
}

// Fs is the filesystem ELF files are opened through; overridden in tests.
var Fs afero.Fs = afero.NewOsFs()

// Open opens path, validates the ELF identification bytes, and dispatches
// on EI_CLASS to the 32- or 64-bit accessor.
func Open(path string) (*File, error) {
	f, err := Fs.Open(path)
	if err != nil {
		return nil, rerr.New(rerr.KindMalformedElf, err)
	}

	ident := make([]byte, eiNident)
	if _, err := io.ReadFull(f, ident); err != nil {
		f.Close()
		return nil, rerr.New(rerr.KindMalformedElf, err)
	}
	if !bytes.Equal(ident[0:4], []byte{0x7f, 'E', 'L', 'F'}) {
		f.Close()
		return nil, rerr.New(rerr.KindMalformedElf, errMagic)
	}

	class := Class(ident[4])
	var acc accessor
	switch class {
	case Class32:
		acc = elf32Accessor{}
	case Class64:
		acc = elf64Accessor{}
	default:
		f.Close()
		return nil, rerr.New(rerr.KindMalformedElf, errClass)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, rerr.New(rerr.KindMalformedElf, err)
	}

	hdrBuf, err := readHeaderBytes(f, class)
	if err != nil {
		f.Close()
		return nil, rerr.New(rerr.KindMalformedElf, err)
	}

	hdr, err := acc.decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{Path: path, Header: hdr, f: f, acc: acc}, nil
}

func readHeaderBytes(f afero.File, class Class) ([]byte, error) {
	size := ehdrSize32
	if class == Class64 {
		size = ehdrSize64
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close releases the underlying file handle.
func (f *File) Close() error { return f.f.Close() }

// IsElf64 reports whether this file is the 64-bit class.
func (f *File) IsElf64() bool { return f.Header.Class == Class64 }

// ReadProgHeader validates i and returns the i'th program header.
func (f *File) ReadProgHeader(i int) (ProgHeader, error) {
	if i < 0 || i >= int(f.Header.Phnum) {
		return ProgHeader{}, rerr.New(rerr.KindIllegalArgument, errIndexRange)
	}
	size := f.acc.progHeaderSize()
	off := int64(f.Header.Phoff) + int64(i)*int64(size)
	buf, err := f.readAt(off, size)
	if err != nil {
		return ProgHeader{}, rerr.New(rerr.KindMalformedElf, err)
	}
	return f.acc.decodeProgHeader(buf), nil
}

// ReadShdr validates i against shnum and shentsize and returns the i'th
// section header.
func (f *File) ReadShdr(i int) (SectionHeader, error) {
	if i < 0 || i >= int(f.Header.Shnum) {
		return SectionHeader{}, rerr.New(rerr.KindIllegalArgument, errIndexRange)
	}
	size := f.acc.sectionHeaderSize()
	if int(f.Header.Shentsize) != size {
		return SectionHeader{}, rerr.New(rerr.KindMalformedElf, errShentsize)
	}
	off := int64(f.Header.Shoff) + int64(i)*int64(size)
	buf, err := f.readAt(off, size)
	if err != nil {
		return SectionHeader{}, rerr.New(rerr.KindMalformedElf, err)
	}
	return f.acc.decodeSectionHeader(buf), nil
}

// ReadSection reads the raw bytes of a section given its header.
func (f *File) ReadSection(sh SectionHeader) ([]byte, error) {
	buf, err := f.readAt(int64(sh.Offset), int(sh.Size))
	if err != nil {
		return nil, rerr.WithAddrSize(rerr.KindMalformedElf, err, sh.Offset, sh.Size)
	}
	return buf, nil
}

func (f *File) readAt(off int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f.f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// LoadSymbols iterates SHT_SYMTAB and SHT_DYNSYM sections, rebases every
// defined, nonzero-value, nonzero-size symbol by base, and resolves its
// name against the section's linked string table. Entries that share a
// name are all returned, in section order; symtab.Cache.AddModule keeps
// the later one.
func (f *File) LoadSymbols(base uint64) ([]ResolvedSymbol, error) {
	var out []ResolvedSymbol
	strtabCache := make(map[uint32][]byte)

	for i := 0; i < int(f.Header.Shnum); i++ {
		sh, err := f.ReadShdr(i)
		if err != nil {
			rlog.Default.Warn().Str("path", f.Path).Int("section", i).Err(err).
				Msg("skipping unreadable section header")
			continue
		}
		if sh.Type != ShtSymtab && sh.Type != ShtDynsym {
			continue
		}

		strtab, ok := strtabCache[sh.Link]
		if !ok {
			strSh, err := f.ReadShdr(int(sh.Link))
			if err != nil {
				continue
			}
			strtab, err = f.ReadSection(strSh)
			if err != nil {
				continue
			}
			strtabCache[sh.Link] = strtab
		}

		data, err := f.ReadSection(sh)
		if err != nil {
			continue
		}

		symSize := f.acc.symbolSize()
		count := len(data) / symSize
		for j := 0; j < count; j++ {
			sym := f.acc.decodeSymbol(data[j*symSize : (j+1)*symSize])
			if sym.Shndx == shnUndef || sym.Value == 0 || sym.Size == 0 {
				continue
			}
			name := cString(strtab, sym.Name)
			if name == "" {
				continue
			}
			out = append(out, ResolvedSymbol{
				Name:  name,
				Start: sym.Value + base,
				End:   sym.Value + sym.Size + base,
			})
		}
	}
	return out, nil
}

// ResolvedSymbol is a symbol already rebased by a module's load bias.
type ResolvedSymbol struct {
	Name  string
	Start uint64
	End   uint64
}

func cString(strtab []byte, off uint32) string {
	if int(off) >= len(strtab) {
		return ""
	}
	end := off
	for end < uint32(len(strtab)) && strtab[end] != 0 {
		end++
	}
	return string(strtab[off:end])
}
