package procreg

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

// spawnSleeper starts a short-lived child process with a stdin pipe,
// standing in for a real encoder process in tests.
func spawnSleeper(t *testing.T, seconds int) (*exec.Cmd, *Registry, Handle) {
	t.Helper()
	cmd := exec.Command("sleep", itoa(seconds))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep binary unavailable in this environment: %v", err)
	}
	reg := NewRegistry()
	h := reg.Register(cmd.Process, stdin)
	return cmd, reg, h
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func TestRegistryRegisterDeregister(t *testing.T) {
	reg := NewRegistry()
	h := reg.Register(nil, nil)
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	reg.Deregister(h)
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", reg.Len())
	}
	// Deregister is idempotent.
	reg.Deregister(h)
}

// Invariant 7 of spec §8: after shutdown returns, the registry is empty and
// no child process remains alive.
func TestShutdownAllForceKillsAfterGraceTimeout(t *testing.T) {
	cmd, reg, _ := spawnSleeper(t, 100)

	// Closing stdin alone doesn't make `sleep` exit, but ShutdownAll should
	// still wait up to the grace timeout and then force-kill it.
	done := make(chan struct{})
	go func() {
		reg.ShutdownAll(context.Background(), 200*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ShutdownAll did not return within 5s")
	}

	if reg.Len() != 0 {
		t.Fatalf("registry Len() = %d after ShutdownAll, want 0", reg.Len())
	}

	waitErrCh := make(chan error, 1)
	go func() { waitErrCh <- cmd.Wait() }()
	select {
	case <-waitErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("child process still alive after ShutdownAll force-killed it")
	}
}

func TestShutdownAllEmptyRegistryReturnsImmediately(t *testing.T) {
	reg := NewRegistry()
	done := make(chan struct{})
	go func() {
		reg.ShutdownAll(context.Background(), time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ShutdownAll on empty registry did not return promptly")
	}
}
