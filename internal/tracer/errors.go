package tracer

import "errors"

var (
	errInvalidPid           = errors.New("invalid pid")
	errInterruptUnsupported = errors.New("interrupt is only valid for a seized attach, which this tracer does not use")
)
