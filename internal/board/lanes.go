package board

import (
	"context"
	"sync"
)

// lanes serializes work per key in arrival order. Different keys never wait
// on each other.
type lanes struct {
	mu    sync.Mutex
	busy  map[string]bool
	queue map[string][]chan struct{}
}

func newLanes() *lanes {
	return &lanes{
		busy:  map[string]bool{},
		queue: map[string][]chan struct{}{},
	}
}

// acquire blocks until key's lane is free or ctx is done. The returned
// release must be called exactly once.
func (l *lanes) acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	if !l.busy[key] {
		l.busy[key] = true
		l.mu.Unlock()
		return l.releaser(key), nil
	}
	ch := make(chan struct{})
	l.queue[key] = append(l.queue[key], ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return l.releaser(key), nil
	case <-ctx.Done():
		l.mu.Lock()
		q := l.queue[key]
		for i, c := range q {
			if c == ch {
				l.queue[key] = append(q[:i:i], q[i+1:]...)
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// The lane was handed to us while ctx fired; pass it on.
		l.release(key)
		return nil, ctx.Err()
	}
}

func (l *lanes) releaser(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { l.release(key) }) }
}

func (l *lanes) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queue[key]
	if len(q) == 0 {
		delete(l.busy, key)
		delete(l.queue, key)
		return
	}
	next := q[0]
	if len(q) == 1 {
		delete(l.queue, key)
	} else {
		l.queue[key] = q[1:]
	}
	close(next)
}

// pending reports how many callers hold or wait for key's lane.
func (l *lanes) pending(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.queue[key])
	if l.busy[key] {
		n++
	}
	return n
}
