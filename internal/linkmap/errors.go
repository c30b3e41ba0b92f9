package linkmap

import "errors"

var (
	errUnsupported32Bit = errors.New("32-bit targets are not supported")
	errNoDynamicSegment = errors.New("no PT_DYNAMIC segment found in main executable")
	errMultipleDynamic  = errors.New("more than one PT_DYNAMIC segment in main executable")
	errNoDtDebug        = errors.New("no DT_DEBUG entry found in .dynamic")
	errDebugNotReady    = errors.New("DT_DEBUG not yet populated by the dynamic linker")
)
