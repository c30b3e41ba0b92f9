//go:build !amd64 && !arm64

// callbackPayload lives in payload_amd64.go and payload_arm64.go; omitting
// it here makes building this package for any other architecture fail at
// compile time.
package heapwalk
