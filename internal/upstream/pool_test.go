package upstream

import (
	"context"
	"testing"
)

func newTestPool() *Pool {
	main := &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}}
	helper := &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}}
	return NewPool(main, helper, 0)
}

func TestPoolChooseWithNoWorkersReturnsHelper(t *testing.T) {
	p := newTestPool()
	if got := p.Choose(); got != 0 {
		t.Fatalf("Choose() with no workers = %d, want 0 (helper)", got)
	}
}

func TestPoolChoosePicksLeastLoaded(t *testing.T) {
	p := newTestPool()
	tokens := map[int]Client{
		1: &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}},
		2: &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}},
	}
	if err := p.Start(context.Background(), tokens); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p.Acquire(1)
	p.Acquire(1)

	if got := p.Choose(); got != 2 {
		t.Fatalf("Choose() = %d, want 2 (less loaded)", got)
	}
}

func TestPoolChooseRoundRobinsTies(t *testing.T) {
	p := newTestPool()
	tokens := map[int]Client{
		1: &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}},
		2: &fakeClient{dcID: 1, sessions: map[int32]*fakeSession{}},
	}
	if err := p.Start(context.Background(), tokens); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := p.Choose()
	second := p.Choose()
	if first == second {
		t.Fatalf("Choose() did not round-robin between equally-loaded workers: got %d then %d", first, second)
	}
}

// Invariant 5 of spec §8: work_loads never drops below zero.
func TestPoolReleaseFloorsAtZero(t *testing.T) {
	p := newTestPool()
	p.Release(1)
	if got := p.Workload(1); got != 0 {
		t.Fatalf("Workload(1) = %d, want 0 after releasing with no prior acquire", got)
	}

	p.Acquire(1)
	p.Release(1)
	p.Release(1)
	if got := p.Workload(1); got != 0 {
		t.Fatalf("Workload(1) = %d, want 0", got)
	}
}

func TestPoolAcquireReleasePairs(t *testing.T) {
	p := newTestPool()
	p.Acquire(3)
	p.Acquire(3)
	if got := p.Workload(3); got != 2 {
		t.Fatalf("Workload(3) = %d, want 2", got)
	}
	p.Release(3)
	if got := p.Workload(3); got != 1 {
		t.Fatalf("Workload(3) = %d, want 1", got)
	}
}
