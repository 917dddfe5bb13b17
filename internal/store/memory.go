package store

import (
	"context"
	"sync"
	"time"
)

// MemoryContextStore mirrors the Postgres context store in process memory.
// The clock is a field so expiry behavior is testable.
type MemoryContextStore struct {
	mu       sync.Mutex
	contexts map[string]PaymentContext
	timings  map[string]SessionTiming
	now      func() time.Time
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{
		contexts: make(map[string]PaymentContext),
		timings:  make(map[string]SessionTiming),
		now:      time.Now,
	}
}

func (s *MemoryContextStore) GetOrCreateSessionStart(_ context.Context, sessionID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timings[sessionID]; ok && s.now().Sub(t.SessionStart) < SessionStartTTL {
		return t.SessionStart, nil
	}

	start := s.now()
	t := s.timings[sessionID]
	t.OriginalSessionID = sessionID
	t.SessionStart = start
	s.timings[sessionID] = t
	return start, nil
}

func (s *MemoryContextStore) StoreContext(_ context.Context, pc PaymentContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc.StoredAt = s.now()
	s.contexts[pc.OriginalSessionID] = pc
	return nil
}

func (s *MemoryContextStore) GetContext(_ context.Context, sessionID string) (*PaymentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.contexts[sessionID]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(pc.StoredAt) >= ContextTTL {
		delete(s.contexts, sessionID)
		return nil, nil
	}
	return &pc, nil
}

func (s *MemoryContextStore) ClearContext(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, sessionID)
	return nil
}

func (s *MemoryContextStore) StoreTiming(_ context.Context, t SessionTiming) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings[t.OriginalSessionID] = t
	return nil
}

func (s *MemoryContextStore) GetTiming(_ context.Context, sessionID string) (*SessionTiming, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timings[sessionID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
