package heapwalk

import "errors"

var errMmapFailed = errors.New("remote mmap returned MAP_FAILED")
