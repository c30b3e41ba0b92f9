package libclocate

import "errors"

var (
	errNoLibcModule   = errors.New("no candidate libc name could be dlopened")
	errDlopenFailed   = errors.New("dlopen failed")
	errDlsymFailed    = errors.New("dlsym failed")
	errNoLocalRegion  = errors.New("no /proc/self/maps region contains the locally resolved address")
	errNoRemoteRegion = errors.New("no equivalent map region found in the tracee")
)
