//go:build !amd64 && !arm64

// setupCallRegs, returnValue, and advanceOverBreakpoint live in
// frame_amd64.go and frame_arm64.go; omitting them here makes building
// this package for any other architecture fail at compile time.
package remotecall
