package coordination

import (
	"context"
	"sync"
	"time"
)

// memorySemaphore is the process-local fallback used in tests and degraded
// mode. Same invariants as the redis implementation, enforced under one
// mutex.
type memorySemaphore struct {
	mu    sync.Mutex
	slots map[string]map[string]time.Time
}

func NewMemorySemaphore() Semaphore {
	return &memorySemaphore{slots: make(map[string]map[string]time.Time)}
}

func (s *memorySemaphore) Degraded() bool { return true }

func (s *memorySemaphore) Acquire(ctx context.Context, slotKey, jobID string, limit int) (bool, error) {
	_ = ctx
	if limit <= 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.slots[slotKey]
	if held == nil {
		held = make(map[string]time.Time)
		s.slots[slotKey] = held
	}
	if _, ok := held[jobID]; ok {
		held[jobID] = time.Now()
		return true, nil
	}
	if len(held) >= limit {
		return false, nil
	}
	held[jobID] = time.Now()
	return true, nil
}

func (s *memorySemaphore) Release(ctx context.Context, slotKey, jobID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if held := s.slots[slotKey]; held != nil {
		delete(held, jobID)
		if len(held) == 0 {
			delete(s.slots, slotKey)
		}
	}
	return nil
}

func (s *memorySemaphore) Heartbeat(ctx context.Context, slotKey, jobID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if held := s.slots[slotKey]; held != nil {
		if _, ok := held[jobID]; ok {
			held[jobID] = time.Now()
		}
	}
	return nil
}

func (s *memorySemaphore) State(ctx context.Context, slotKey string, limit int) (SemaphoreState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.slots[slotKey]
	jobs := make([]string, 0, len(held))
	for id := range held {
		jobs = append(jobs, id)
	}
	return SemaphoreState{ActiveCount: len(held), Limit: limit, JobIDs: jobs}, nil
}

func (s *memorySemaphore) ReapStale(ctx context.Context, slotKey string, olderThan time.Duration) ([]string, error) {
	_ = ctx
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.slots[slotKey]
	var evicted []string
	for id, beat := range held {
		if beat.Before(cutoff) {
			evicted = append(evicted, id)
			delete(held, id)
		}
	}
	if len(held) == 0 {
		delete(s.slots, slotKey)
	}
	return evicted, nil
}

func (s *memorySemaphore) ActiveKeys(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for k := range s.slots {
		out = append(out, k)
	}
	return out, nil
}

type memoryLockEntry struct {
	holderID  string
	expiresAt time.Time
}

type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
}

func NewMemoryLocker() Locker {
	return &memoryLocker{locks: make(map[string]memoryLockEntry)}
}

func (l *memoryLocker) Degraded() bool { return true }

func (l *memoryLocker) Acquire(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error) {
	_ = ctx
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.locks[resourceKey]; ok && cur.expiresAt.After(now) && cur.holderID != holderID {
		return false, nil
	}
	l.locks[resourceKey] = memoryLockEntry{holderID: holderID, expiresAt: now.Add(lease)}
	return true, nil
}

func (l *memoryLocker) Release(ctx context.Context, resourceKey, holderID string) (bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[resourceKey]
	if !ok || cur.holderID != holderID {
		return false, nil
	}
	delete(l.locks, resourceKey)
	return true, nil
}

func (l *memoryLocker) Renew(ctx context.Context, resourceKey, holderID string, lease time.Duration) (bool, error) {
	_ = ctx
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[resourceKey]
	if !ok || cur.holderID != holderID || !cur.expiresAt.After(now) {
		return false, nil
	}
	l.locks[resourceKey] = memoryLockEntry{holderID: holderID, expiresAt: now.Add(lease)}
	return true, nil
}
