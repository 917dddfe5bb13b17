package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContextStore persists checkout contexts and session timing anchors in
// Postgres so they survive full navigations to a provider domain and back.
type ContextStore struct {
	pool *pgxpool.Pool
}

func (s *ContextStore) GetOrCreateSessionStart(ctx context.Context, sessionID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var start time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT session_start FROM session_timings
		WHERE session_id = $1 AND session_start > now() - $2::interval
	`, sessionID, SessionStartTTL.String()).Scan(&start)
	if err == nil {
		return start, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("get session start: %w", err)
	}

	start = time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_timings (session_id, session_start, auth_required)
		VALUES ($1, $2, false)
		ON CONFLICT (session_id)
		DO UPDATE SET session_start = EXCLUDED.session_start
	`, sessionID, start)
	if err != nil {
		return time.Time{}, fmt.Errorf("create session start: %w", err)
	}
	return start, nil
}

func (s *ContextStore) StoreContext(ctx context.Context, pc PaymentContext) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_contexts (session_id, test_id, gateway, session_start, return_url, stored_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (session_id)
		DO UPDATE SET
			test_id = EXCLUDED.test_id,
			gateway = EXCLUDED.gateway,
			session_start = EXCLUDED.session_start,
			return_url = EXCLUDED.return_url,
			stored_at = now()
	`, pc.OriginalSessionID, pc.TestID, pc.Gateway, pc.SessionStart, pc.ReturnURL)
	if err != nil {
		return fmt.Errorf("store payment context: %w", err)
	}
	return nil
}

func (s *ContextStore) GetContext(ctx context.Context, sessionID string) (*PaymentContext, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var pc PaymentContext
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, test_id, gateway, session_start, return_url, stored_at
		FROM payment_contexts WHERE session_id = $1
	`, sessionID).Scan(&pc.OriginalSessionID, &pc.TestID, &pc.Gateway, &pc.SessionStart, &pc.ReturnURL, &pc.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment context: %w", err)
	}

	if time.Since(pc.StoredAt) >= ContextTTL {
		// Expired contexts are cleared on read so they are never seen twice.
		_ = s.ClearContext(ctx, sessionID)
		return nil, nil
	}
	return &pc, nil
}

func (s *ContextStore) ClearContext(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM payment_contexts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear payment context: %w", err)
	}
	return nil
}

func (s *ContextStore) StoreTiming(ctx context.Context, t SessionTiming) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_timings (session_id, test_id, session_start, auth_required)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id)
		DO UPDATE SET
			test_id = EXCLUDED.test_id,
			session_start = EXCLUDED.session_start,
			auth_required = EXCLUDED.auth_required
	`, t.OriginalSessionID, t.TestID, t.SessionStart, t.AuthenticationRequired)
	if err != nil {
		return fmt.Errorf("store session timing: %w", err)
	}
	return nil
}

func (s *ContextStore) GetTiming(ctx context.Context, sessionID string) (*SessionTiming, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var t SessionTiming
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, COALESCE(test_id, ''), session_start, auth_required
		FROM session_timings WHERE session_id = $1
	`, sessionID).Scan(&t.OriginalSessionID, &t.TestID, &t.SessionStart, &t.AuthenticationRequired)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session timing: %w", err)
	}
	return &t, nil
}
