//go:build !amd64 && !arm64

// This file intentionally defines nothing. Regset, GetRegs, and SetRegs
// live in regs_amd64.go and regs_arm64.go; without a third implementation
// here, building this package for any other architecture fails at compile
// time ("undefined: Regset") instead of producing a binary that cannot
// actually read a tracee's registers.
package tracer
