package memaccess

import "errors"

var errShortXfer = errors.New("process_vm_readv/writev transferred fewer bytes than requested")
