package elfbin

import "encoding/binary"

const ehdrSize32 = 52

// elf32Accessor exists so a 32-bit target's headers can be read far enough
// to be recognized and rejected (see rerr.KindIllegalArgument in linkmap);
// this engine otherwise refuses 32-bit targets outright.
type elf32Accessor struct{}

func (elf32Accessor) decodeHeader(raw []byte) (Header, error) {
	if len(raw) < ehdrSize32 {
		return Header{}, errTruncated
	}
	le := binary.LittleEndian
	return Header{
		Class:     Class32,
		Type:      le.Uint16(raw[16:18]),
		Machine:   le.Uint16(raw[18:20]),
		Entry:     uint64(le.Uint32(raw[24:28])),
		Phoff:     uint64(le.Uint32(raw[28:32])),
		Shoff:     uint64(le.Uint32(raw[32:36])),
		Phentsize: le.Uint16(raw[42:44]),
		Phnum:     le.Uint16(raw[44:46]),
		Shentsize: le.Uint16(raw[46:48]),
		Shnum:     le.Uint16(raw[48:50]),
		Shstrndx:  le.Uint16(raw[50:52]),
	}, nil
}

func (elf32Accessor) progHeaderSize() int { return 32 }

func (elf32Accessor) decodeProgHeader(raw []byte) ProgHeader {
	le := binary.LittleEndian
	return ProgHeader{
		Type:   ProgType(le.Uint32(raw[0:4])),
		Offset: uint64(le.Uint32(raw[4:8])),
		Vaddr:  uint64(le.Uint32(raw[8:12])),
		Filesz: uint64(le.Uint32(raw[16:20])),
		Memsz:  uint64(le.Uint32(raw[20:24])),
		Flags:  le.Uint32(raw[24:28]),
	}
}

func (elf32Accessor) sectionHeaderSize() int { return 40 }

func (elf32Accessor) decodeSectionHeader(raw []byte) SectionHeader {
	le := binary.LittleEndian
	return SectionHeader{
		Name:    le.Uint32(raw[0:4]),
		Type:    SectionType(le.Uint32(raw[4:8])),
		Addr:    uint64(le.Uint32(raw[12:16])),
		Offset:  uint64(le.Uint32(raw[16:20])),
		Size:    uint64(le.Uint32(raw[20:24])),
		Link:    le.Uint32(raw[24:28]),
		Entsize: uint64(le.Uint32(raw[36:40])),
	}
}

func (elf32Accessor) symbolSize() int { return 16 }

func (elf32Accessor) decodeSymbol(raw []byte) Symbol {
	le := binary.LittleEndian
	info := raw[12]
	return Symbol{
		Name:     le.Uint32(raw[0:4]),
		Value:    uint64(le.Uint32(raw[4:8])),
		Size:     uint64(le.Uint32(raw[8:12])),
		Shndx:    le.Uint16(raw[14:16]),
		IsGlobal: (info >> 4) == 1,
	}
}
