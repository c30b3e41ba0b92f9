package elfbin

import "errors"

var (
	errMagic      = errors.New("not an ELF file: bad magic")
	errClass      = errors.New("unsupported ELF class")
	errTruncated  = errors.New("ELF header truncated")
	errIndexRange = errors.New("index out of range")
	errShentsize  = errors.New("section header entry size does not match class")
)
