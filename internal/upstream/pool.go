package upstream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// Pool holds the main control client, the helper client (worker 0), and N
// numbered workers, tracking per-worker in-flight load for least-loaded
// selection.
type Pool struct {
	mu sync.Mutex

	main   Client
	helper Client
	workers map[int]Client

	workloads map[int]int
	rrPointer int

	clientStartTimeout time.Duration
}

// NewPool constructs an empty Pool around a main control client and a
// helper client. Call Start to bring up any numbered workers.
func NewPool(main, helper Client, clientStartTimeout time.Duration) *Pool {
	if clientStartTimeout <= 0 {
		clientStartTimeout = 30 * time.Second
	}
	return &Pool{
		main:                main,
		helper:              helper,
		workers:             make(map[int]Client),
		workloads:           map[int]int{0: 0},
		clientStartTimeout:  clientStartTimeout,
	}
}

// Start connects the main and helper clients, then brings up every worker
// in tokens concurrently. A worker whose credentials are rejected is
// logged and permanently skipped (no retry); a worker that is
// rate-limited on start sleeps wait+1 seconds and is retried exactly
// once, per spec §7's explicit client-start retry rule.
func (p *Pool) Start(ctx context.Context, tokens map[int]Client) error {
	startCtx, cancel := context.WithTimeout(ctx, p.clientStartTimeout)
	defer cancel()

	if err := p.main.Start(startCtx); err != nil {
		return err
	}
	if err := p.helper.Start(startCtx); err != nil {
		return err
	}

	if len(tokens) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for id, client := range tokens {
		id, client := id, client
		g.Go(func() error {
			err := p.startWorker(gctx, id, client)
			if err != nil {
				mu.Lock()
				slog.Warn("upstream: worker failed to start", "worker", id, "error", err)
				mu.Unlock()
			}
			return nil // a failed worker never fails the whole pool start
		})
	}
	return g.Wait()
}

func (p *Pool) startWorker(ctx context.Context, id int, client Client) error {
	err := client.Start(ctx)
	if err == nil {
		p.mu.Lock()
		p.workers[id] = client
		p.workloads[id] = 0
		p.mu.Unlock()
		slog.Info("upstream: worker started", "worker", id)
		return nil
	}

	var credErr *xerrors.CredentialExpiredError
	if errors.As(err, &credErr) {
		slog.Warn("upstream: worker credential expired, skipping", "worker", id)
		return err
	}

	if rl, ok := xerrors.AsRateLimited(err); ok {
		slog.Warn("upstream: worker rate limited on start", "worker", id, "wait_seconds", rl.WaitSeconds)
		select {
		case <-time.After(time.Duration(rl.WaitSeconds+1) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		if retryErr := client.Start(ctx); retryErr == nil {
			p.mu.Lock()
			p.workers[id] = client
			p.workloads[id] = 0
			p.mu.Unlock()
			slog.Info("upstream: worker started after retry", "worker", id)
			return nil
		}
		return err
	}

	return err
}

// Choose returns the ID of a worker with minimum workload, breaking ties
// with a round-robin pointer. If no workers exist, returns 0 (the helper).
func (p *Pool) Choose() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.workers) == 0 {
		return 0
	}

	minLoad := -1
	var candidates []int
	for id, load := range p.workloads {
		if id == 0 {
			continue
		}
		if minLoad == -1 || load < minLoad {
			minLoad = load
			candidates = []int{id}
		} else if load == minLoad {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	sortInts(candidates)
	chosen := candidates[p.rrPointer%len(candidates)]
	p.rrPointer++
	return chosen
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ClientFor returns the Client for workerID (0 = helper).
func (p *Pool) ClientFor(workerID int) Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if workerID == 0 {
		return p.helper
	}
	return p.workers[workerID]
}

// Acquire increments workerID's workload counter. Always paired with a
// deferred Release, even on error paths.
func (p *Pool) Acquire(workerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workloads[workerID]++
}

// Release decrements workerID's workload counter, floored at zero.
func (p *Pool) Release(workerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workloads[workerID] > 0 {
		p.workloads[workerID]--
	}
}

// Workload returns the current workload for workerID, for diagnostics.
func (p *Pool) Workload(workerID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workloads[workerID]
}

// Stop requests every client (main, helper, workers) to close, waiting
// for all to terminate.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	workers := make([]Client, 0, len(p.workers))
	for _, c := range p.workers {
		workers = append(workers, c)
	}
	p.mu.Unlock()

	var g errgroup.Group
	for _, c := range workers {
		c := c
		g.Go(func() error { return c.Stop(ctx) })
	}
	g.Go(func() error { return p.helper.Stop(ctx) })
	g.Go(func() error { return p.main.Stop(ctx) })
	return g.Wait()
}
