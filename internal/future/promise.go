package future

import (
	"context"
	"sync"
)

// Promise is a value that is resolved at most once. Later resolutions are
// dropped.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve stores v and wakes waiters. It reports whether this call won.
func (p *Promise[T]) Resolve(v T) bool {
	won := false
	p.once.Do(func() {
		p.value = v
		close(p.done)
		won = true
	})
	return won
}

// Await blocks until the promise is resolved or ctx is done. A cancelled
// wait does not affect the producer.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the promise is resolved
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}
