package sessions

import (
	"sync"
)

// refLock is a per-session mutex with a reference count, released and
// removed from the owning map once no caller holds it — grounded on
// internal/agent/tool_registry.go's sessionLock/lockSession pattern
// (a refcounted per-session mutex keyed by session id), generalized
// here from tool-call serialization to the session store's write
// discipline (spec.md §4.7: "each session has a dedicated in-memory
// mutex... writes to different sessions proceed in parallel").
type refLock struct {
	mu  sync.Mutex
	ref int
}

// Locker hands out the dedicated mutex for one session id, matching
// the shape of internal/sessions/locker.go's Locker interface but
// backed only by the in-process LocalLocker variant: this runtime's
// store is file-based, not DB-backed, so the teacher's DBLocker lease
// machinery has no role here (see DESIGN.md).
type Locker struct {
	mu     sync.Mutex
	locks  map[string]*refLock
}

// NewLocker builds an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: map[string]*refLock{}}
}

// Lock acquires the mutex for sessionID, creating it on first use.
// Callers must call Unlock exactly once per Lock call.
func (l *Locker) Lock(sessionID string) {
	l.mu.Lock()
	rl, ok := l.locks[sessionID]
	if !ok {
		rl = &refLock{}
		l.locks[sessionID] = rl
	}
	rl.ref++
	l.mu.Unlock()

	rl.mu.Lock()
}

// Unlock releases the mutex for sessionID, removing the entry once the
// last holder releases it so the map does not grow without bound.
func (l *Locker) Unlock(sessionID string) {
	l.mu.Lock()
	rl, ok := l.locks[sessionID]
	if !ok {
		l.mu.Unlock()
		return
	}
	rl.ref--
	if rl.ref <= 0 {
		delete(l.locks, sessionID)
	}
	l.mu.Unlock()

	rl.mu.Unlock()
}
