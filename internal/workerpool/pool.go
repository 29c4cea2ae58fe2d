// Package workerpool runs blocking provider calls on a bounded number of
// goroutines, throttled per provider.
package workerpool

import (
	"context"
	"sync"

	"github.com/example/railbot/internal/rail"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type Pool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	limiters map[rail.Provider]*rate.Limiter
	perSec   float64
	burst    int
}

// New returns a pool running at most size calls at once. perSec <= 0
// disables rate limiting.
func New(size int, perSec float64) *Pool {
	if size < 1 {
		size = 1
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(size)),
		limiters: make(map[rail.Provider]*rate.Limiter),
		perSec:   perSec,
		burst:    burst,
	}
}

func (p *Pool) limiter(pr rail.Provider) *rate.Limiter {
	if p.perSec <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[pr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.perSec), p.burst)
		p.limiters[pr] = l
	}
	return l
}

// Do runs fn on a pool goroutine. If ctx ends first Do returns ctx.Err();
// fn keeps running in the background and releases its slot when it returns.
func (p *Pool) Do(ctx context.Context, pr rail.Provider, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if l := p.limiter(pr); l != nil {
		if err := l.Wait(ctx); err != nil {
			p.sem.Release(1)
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is Do for calls that produce a value.
func Run[T any](ctx context.Context, p *Pool, pr rail.Provider, fn func() (T, error)) (T, error) {
	var (
		mu  sync.Mutex
		out T
	)
	err := p.Do(ctx, pr, func() error {
		v, err := fn()
		mu.Lock()
		out = v
		mu.Unlock()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}
