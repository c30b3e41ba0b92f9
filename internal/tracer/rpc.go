package tracer

import (
	"fmt"
	"runtime"

	"remoteinspect/internal/rerr"
)

// All ptrace calls for one tracee must issue from the same OS thread that
// performed PTRACE_ATTACH; ptrace is thread-scoped, not process-scoped.
// rpcWorker pins one goroutine to one OS thread with runtime.LockOSThread
// and drains a queue of plain closures on it, the same thread-affinity
// requirement the teacher's doSyscallWorker/doSysRPC in ptrace.go solves
// with a boxed any-typed request/response pair; here each submitted job
// closes over its own result variables directly instead of round-tripping
// through an interface{} value and a type assertion.
type rpcWorker struct {
	jobs chan func()
	done chan struct{}
}

func newRPCWorker() *rpcWorker {
	w := &rpcWorker{
		jobs: make(chan func()),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *rpcWorker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	for job := range w.jobs {
		job()
	}
}

func (w *rpcWorker) stop() {
	close(w.jobs)
	<-w.done
}

// submit runs fn on the worker's locked OS thread and blocks until fn
// returns. It does not recover panics itself; rpcCall and rpcCallErr wrap
// fn so that a panic becomes a KindAttachFailed error via panicErr.
func (w *rpcWorker) submit(fn func()) {
	sync := make(chan struct{})
	w.jobs <- func() {
		defer close(sync)
		fn()
	}
	<-sync
}

func panicErr(x any) error {
	return rerr.New(rerr.KindAttachFailed, fmt.Errorf("panic in tracer worker: %v", x))
}

// rpcCall runs fn on w's pinned OS thread and returns its result, the
// generic form used by register and signal-info access, which need a
// typed value back rather than just an error.
func rpcCall[T any](w *rpcWorker, fn func() (T, error)) (T, error) {
	var result T
	var callErr error
	w.submit(func() {
		defer func() {
			if x := recover(); x != nil {
				callErr = panicErr(x)
			}
		}()
		result, callErr = fn()
	})
	return result, callErr
}

// rpcCallErr runs fn on w's pinned OS thread for calls with no result
// value, e.g. PTRACE_ATTACH/CONT/DETACH.
func rpcCallErr(w *rpcWorker, fn func() error) error {
	var callErr error
	w.submit(func() {
		defer func() {
			if x := recover(); x != nil {
				callErr = panicErr(x)
			}
		}()
		callErr = fn()
	})
	return callErr
}
