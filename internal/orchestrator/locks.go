package orchestrator

import (
	"context"
	"sync"
)

// repoLocks hands out one exclusion token per repository name, so syncs of
// the same repository never interleave while unrelated repositories proceed
// in parallel.
type repoLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newRepoLocks() *repoLocks {
	return &repoLocks{held: make(map[string]chan struct{})}
}

// tryAcquire takes the token for name if it is free. The returned release
// function must be called exactly once.
func (l *repoLocks) tryAcquire(name string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[name]; busy {
		return nil, false
	}

	ch := make(chan struct{})
	l.held[name] = ch
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
		close(ch)
	}, true
}

// acquire waits for the token, honoring context cancellation.
func (l *repoLocks) acquire(ctx context.Context, name string) (release func(), err error) {
	for {
		if release, ok := l.tryAcquire(name); ok {
			return release, nil
		}

		l.mu.Lock()
		ch := l.held[name]
		l.mu.Unlock()
		if ch == nil {
			// Holder released between the failed tryAcquire and here.
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}
