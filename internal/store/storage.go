package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("resource not found")
	QueryTimeoutDuration = time.Second * 5
)

// TTLs for the durable checkout state. The session start anchor outlives any
// single payment context.
const (
	ContextTTL      = time.Hour
	SessionStartTTL = 2 * time.Hour
)

// PaymentContext is the checkout intent written immediately before any step
// that hands control to an external domain, and read back once on return.
// One active context per session key, last write wins.
type PaymentContext struct {
	OriginalSessionID string
	TestID            string
	Gateway           string
	SessionStart      time.Time
	ReturnURL         string
	StoredAt          time.Time
}

// SessionTiming anchors duration metrics. Created before a payment context
// and may outlive it.
type SessionTiming struct {
	OriginalSessionID      string
	TestID                 string
	SessionStart           time.Time
	AuthenticationRequired bool
}

type Storage struct {
	Contexts interface {
		// GetOrCreateSessionStart returns the existing anchor while it is
		// younger than SessionStartTTL, otherwise mints a new one.
		GetOrCreateSessionStart(ctx context.Context, sessionID string) (time.Time, error)

		// StoreContext overwrites any previous context for the session.
		StoreContext(ctx context.Context, pc PaymentContext) error

		// GetContext returns nil for a missing or expired context. An
		// expired row is cleared as a side effect and never returned twice.
		GetContext(ctx context.Context, sessionID string) (*PaymentContext, error)

		// ClearContext invalidates a consumed context. Clearing a missing
		// context is not an error.
		ClearContext(ctx context.Context, sessionID string) error

		StoreTiming(ctx context.Context, t SessionTiming) error
		GetTiming(ctx context.Context, sessionID string) (*SessionTiming, error)
	}
	AttemptLogs interface {
		// Insert records an attempt lifecycle stage for support. Best
		// effort: callers log failures and move on.
		Insert(ctx context.Context, sessionID, stage string, payload any) error
	}
}

func NewStorage(pool *pgxpool.Pool) Storage {
	return Storage{
		Contexts:    &ContextStore{pool: pool},
		AttemptLogs: &AttemptLogStore{pool: pool},
	}
}

// NewMemoryStorage backs the same interfaces with process memory. Used by
// tests and single-node development.
func NewMemoryStorage() Storage {
	return Storage{
		Contexts:    NewMemoryContextStore(),
		AttemptLogs: &MemoryAttemptLogStore{},
	}
}
