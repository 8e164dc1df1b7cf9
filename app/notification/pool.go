package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
)

var ErrPoolStopped = errors.New("worker pool is stopped")

// Handler processes one email. It must honour ctx cancellation.
type Handler func(ctx context.Context, msg entity.EmailMessage)

// Pool runs a fixed number of workers fed by a bounded queue. Submit blocks
// while the queue is full.
type Pool struct {
	workers int
	handle  Handler
	queue   chan entity.EmailMessage

	mu      sync.RWMutex
	started bool
	stopped bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(workers, queueSize int, handle Handler) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		handle:  handle,
		queue:   make(chan entity.EmailMessage, queueSize),
	}
}

// Start launches the workers. Handlers run under ctx until Stop gives up on them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(workCtx)
	}
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for msg := range p.queue {
		metrics.EmailQueueDepth.Set(float64(len(p.queue)))
		p.handle(ctx, msg)
	}
}

func (p *Pool) Submit(ctx context.Context, msg entity.EmailMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- msg:
		metrics.EmailQueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work and waits for queued and in-flight messages. When ctx
// ends first the remaining handlers are cancelled and ctx.Err() is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
