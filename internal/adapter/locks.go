package adapter

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"lmsbridge/internal/domain"
)

// HandleLocks gives each host API a single writer. Entries exist only while
// someone holds or waits for them.
type HandleLocks struct {
	mu    sync.Mutex
	locks map[string]*handleLock
}

type handleLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewHandleLocks returns an empty lock set.
func NewHandleLocks() *HandleLocks {
	return &HandleLocks{locks: map[string]*handleLock{}}
}

// LockKey identifies the host resource behind h: the environment and
// object path for object APIs, the session or endpoint for HTTP ones. Two
// handles labelled differently from different roots share a key when they
// reach the same API.
func LockKey(h *domain.ApiHandle) string {
	ref := h.Ref
	switch {
	case ref.Env != nil && len(ref.Path) > 0:
		return "env:" + ref.Env.ID() + "/" + strings.Join(ref.Path, ".")
	case ref.AICC != nil:
		return "aicc:" + ref.AICC.URL + "#" + ref.AICC.SessionID
	case ref.LRS != nil:
		return "lrs:" + ref.LRS.Endpoint + "#" + ref.LRS.Registration
	}
	return "loc:" + h.Location
}

// Acquire blocks until h is free or ctx is done. The returned func
// releases the lock.
func (l *HandleLocks) Acquire(ctx context.Context, h *domain.ApiHandle) (func(), error) {
	key := LockKey(h)

	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &handleLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if err := lk.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, lk)
		return nil, domain.E(domain.KindTimeout, "lock "+h.Location, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			lk.sem.Release(1)
			l.unref(key, lk)
		})
	}, nil
}

// Len returns how many keys are held or waited on.
func (l *HandleLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *HandleLocks) unref(key string, lk *handleLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
