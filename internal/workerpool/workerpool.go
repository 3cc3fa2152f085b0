// Package workerpool wraps a process-wide github.com/panjf2000/ants/v2 pool
// so outbound HTTP calls to batch STT/TTS providers run under bounded
// concurrency instead of one goroutine per call.
package workerpool

import (
	"context"

	"github.com/panjf2000/ants/v2"

	"discord-voice-agent/internal/logging"
)

var log = logging.For("workerpool")

// Pool bounds concurrent execution of submitted tasks.
type Pool struct {
	pool *ants.Pool
}

// New creates a pool with the given capacity (concurrent goroutines).
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = 32
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

// Submit runs fn on the pool. If the pool rejects the task (for example
// because it has been released), the failure is logged and fn runs inline
// on the caller's goroutine instead.
func (p *Pool) Submit(fn func()) {
	if err := p.pool.Submit(fn); err != nil {
		log.Warnf("task submission failed, running inline: %v", err)
		fn()
	}
}

// Release tears the pool down; it does not wait for running tasks to finish.
func (p *Pool) Release() {
	p.pool.Release()
}

// Do submits fn to the pool and blocks the caller until it completes or ctx
// is cancelled first, giving a one-shot bounded-concurrency call the same
// call/return shape as calling fn directly.
func Do[T any](p *Pool, ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	p.Submit(func() {
		v, err := fn()
		ch <- result{v, err}
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
