package remotecall

import "errors"

var errTraceeGone = errors.New("tracee exited or was killed by a signal before the call completed")
