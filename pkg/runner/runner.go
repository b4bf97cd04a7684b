// Package runner processes many claims in parallel tasks. Each task owns its
// own executor state and deadline; the pool shares only the read-only
// registry, validator, and attestor key, so no cross-task synchronisation is
// needed beyond the result channel.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/signer"
)

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("runner: pool is closed")

// Task is one claim-processing request.
type Task struct {
	ID           string
	Claim        *contracts.ProviderClaimData
	ProcessorDoc []byte
	Convention   signer.Convention
}

// Outcome is the terminal state of one task.
type Outcome struct {
	TaskID string
	Result *contracts.ProcessedClaimData
	Err    error
}

// Pool runs tasks against one envelope with bounded concurrency and an
// optional submission rate limit.
type Pool struct {
	envelope *signer.Envelope
	workers  int
	limiter  *rate.Limiter

	mu         sync.Mutex
	started    bool
	closed     bool
	submitters sync.WaitGroup

	tasks   chan Task
	done    chan struct{}
	wg      sync.WaitGroup
	results chan Outcome
}

// NewPool creates a pool over the envelope. workers <= 0 selects a default
// of 4. ratePerSec <= 0 disables throttling.
func NewPool(envelope *signer.Envelope, workers int, ratePerSec float64) *Pool {
	if workers <= 0 {
		workers = 4
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Pool{
		envelope: envelope,
		workers:  workers,
		limiter:  limiter,
		tasks:    make(chan Task),
		done:     make(chan struct{}),
		results:  make(chan Outcome),
	}
}

// Results delivers one Outcome per accepted task. The channel closes after
// Close once all in-flight tasks have drained.
func (p *Pool) Results() <-chan Outcome { return p.results }

// Start launches the worker tasks. Idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Submit enqueues a claim for processing, honouring the rate limit. The
// returned task id correlates with the eventual Outcome. After Close, Submit
// returns ErrPoolClosed; a Submit already in flight when Close is called
// either lands in the queue or returns ErrPoolClosed, never panics.
func (p *Pool) Submit(ctx context.Context, claim *contracts.ProviderClaimData, processorDoc []byte, convention signer.Convention) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	// Register as an in-flight submitter so Close defers closing the task
	// channel until every pending send has resolved.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrPoolClosed
	}
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	task := Task{
		ID:           uuid.NewString(),
		Claim:        claim,
		ProcessorDoc: processorDoc,
		Convention:   convention,
	}
	select {
	case p.tasks <- task:
		return task.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", ErrPoolClosed
	}
}

// Close stops accepting tasks; workers exit after draining the queue. The
// task channel is closed only after every in-flight Submit has returned.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.submitters.Wait()
	close(p.tasks)
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		result, err := p.envelope.ProcessClaim(ctx, task.Claim, task.ProcessorDoc, task.Convention)
		select {
		case p.results <- Outcome{TaskID: task.ID, Result: result, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}
