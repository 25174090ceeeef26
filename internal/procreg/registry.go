// Package procreg implements the process-wide registry of spawned encoder
// processes (§4.I): a pure observer that tracks handles for emergency
// teardown, never owning the processes it records.
package procreg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Handle is an opaque identifier returned by Register, passed back to
// Deregister.
type Handle uint64

// entry pairs a process with its stdin, so shutdown can close stdin before
// waiting on exit.
type entry struct {
	proc  *os.Process
	stdin io.Closer
}

// Registry is the process-wide set of active encoder handles. Races
// between concurrent Register/Deregister/Shutdown calls are tolerated:
// shutdown also walks the registry defensively, and a process that has
// already exited simply returns an error on Kill/Wait that is ignored.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Handle]entry)}
}

// Register adds proc (and its stdin, for close-before-wait shutdown) to
// the registry and returns a handle for later deregistration.
func (r *Registry) Register(proc *os.Process, stdin io.Closer) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.entries[h] = entry{proc: proc, stdin: stdin}
	return h
}

// Deregister removes h from the registry. It is idempotent.
func (r *Registry) Deregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

// Len reports how many processes are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ShutdownAll closes every registered process's stdin, then waits up to
// graceTimeout for each to exit, force-killing any that don't. Once every
// process has been handled, their entries are removed from the registry.
func (r *Registry) ShutdownAll(ctx context.Context, graceTimeout time.Duration) {
	r.mu.Lock()
	snapshot := make([]entry, 0, len(r.entries))
	handles := make([]Handle, 0, len(r.entries))
	for h, e := range r.entries {
		snapshot = append(snapshot, e)
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		if e.stdin != nil {
			e.stdin.Close()
		}
	}

	var wg sync.WaitGroup
	for _, e := range snapshot {
		e := e
		wg.Add(1)
		go func() {
			defer wg.Done()
			waitOrKill(e.proc, graceTimeout)
		}()
	}
	wg.Wait()

	r.mu.Lock()
	for _, h := range handles {
		delete(r.entries, h)
	}
	r.mu.Unlock()
}

func waitOrKill(proc *os.Process, graceTimeout time.Duration) {
	if proc == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = proc.Wait()
	}()

	select {
	case <-done:
	case <-time.After(graceTimeout):
		slog.Warn("procreg: forcing kill after grace timeout", "pid", proc.Pid)
		_ = proc.Kill()
		<-done
	}
}
