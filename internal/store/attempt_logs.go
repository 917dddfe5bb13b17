package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptLogStore keeps an audit trail of attempt lifecycle stages for
// support and reconciliation.
type AttemptLogStore struct {
	pool *pgxpool.Pool
}

func (s *AttemptLogStore) Insert(ctx context.Context, sessionID, stage string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var jb []byte
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_attempt_logs (session_id, stage, payload)
		VALUES ($1, $2, $3)
	`, sessionID, stage, jb)
	if err != nil {
		return fmt.Errorf("insert attempt log: %w", err)
	}
	return nil
}

type attemptLogEntry struct {
	SessionID string
	Stage     string
	Payload   any
	At        time.Time
}

type MemoryAttemptLogStore struct {
	mu      sync.Mutex
	entries []attemptLogEntry
}

func (s *MemoryAttemptLogStore) Insert(_ context.Context, sessionID, stage string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, attemptLogEntry{
		SessionID: sessionID,
		Stage:     stage,
		Payload:   payload,
		At:        time.Now(),
	})
	return nil
}

// Entries returns a copy of the recorded log, oldest first.
func (s *MemoryAttemptLogStore) Entries() []attemptLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attemptLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
