package polling

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindprint/internal/backend"
)

// ErrTimeout is passed to onError when polling exceeds the maximum duration
// without reaching a terminal status.
var ErrTimeout = errors.New("status polling timed out")

// StatusClient is the slice of the backend client the monitor needs.
type StatusClient interface {
	Status(ctx context.Context, sessionID, testID string) (*backend.ReportStatus, error)
}

// Monitor polls the backend for report generation status after a completed
// payment. One handle may be active per (session, test) pair; starting a
// second cancels the first.
type Monitor struct {
	client      StatusClient
	interval    time.Duration
	maxDuration time.Duration
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	active map[string]*Handle
}

func NewMonitor(client StatusClient, interval, maxDuration time.Duration, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		client:      client,
		interval:    interval,
		maxDuration: maxDuration,
		logger:      logger,
		active:      make(map[string]*Handle),
	}
}

// Handle cancels a running poll. Cancel is idempotent; after it returns no
// further callback fires.
type Handle struct {
	mu     sync.Mutex
	done   bool
	stop   chan struct{}
	key    string
	parent *Monitor
}

// finish flips the handle into its terminal state. Returns false when the
// handle was already finished, so callbacks fire at most once.
func (h *Handle) finish() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	close(h.stop)
	return true
}

func (h *Handle) finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// finishAnd flips the handle terminal and runs fn inside the same critical
// section. Cancel blocks on the mutex, so it cannot return while fn is still
// executing and no callback starts after it has returned.
func (h *Handle) finishAnd(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	h.done = true
	close(h.stop)
	fn()
	return true
}

// ifActive runs fn under the handle mutex unless the handle already
// finished. Callbacks must not call Cancel from inside fn.
func (h *Handle) ifActive(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return false
	}
	fn()
	return true
}

func (h *Handle) Cancel() {
	if h.finish() {
		h.parent.release(h)
	}
}

// StartPolling begins polling the backend status endpoint on the monitor's
// interval. onUpdate fires for each non-terminal status, onComplete exactly
// once on a terminal one, onError on timeout or a failed status request.
func (m *Monitor) StartPolling(sessionID, testID string, onUpdate func(*backend.ReportStatus), onComplete func(*backend.ReportStatus), onError func(error)) *Handle {
	key := sessionID + "|" + testID

	h := &Handle{
		stop:   make(chan struct{}),
		key:    key,
		parent: m,
	}

	m.mu.Lock()
	if prev, ok := m.active[key]; ok {
		prev.finish()
	}
	m.active[key] = h
	m.mu.Unlock()

	go m.run(h, sessionID, testID, onUpdate, onComplete, onError)
	return h
}

func (m *Monitor) run(h *Handle, sessionID, testID string, onUpdate func(*backend.ReportStatus), onComplete func(*backend.ReportStatus), onError func(error)) {
	defer m.release(h)

	deadline := time.Now().Add(m.maxDuration)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			h.finishAnd(func() { onError(ErrTimeout) })
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		status, err := m.client.Status(ctx, sessionID, testID)
		cancel()

		if h.finished() {
			return
		}

		if err != nil {
			// Transient by assumption; keep polling until the deadline.
			m.logger.Warnw("status poll failed", "session_id", sessionID, "test_id", testID, "err", err.Error())
			continue
		}

		if status.Terminal() {
			// Stop inside the handle's critical section so a Cancel racing
			// with the terminal tick either suppresses onComplete or waits
			// for it to return.
			h.finishAnd(func() { onComplete(status) })
			return
		}

		if !h.ifActive(func() { onUpdate(status) }) {
			return
		}
	}
}

func (m *Monitor) release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.active[h.key]; ok && cur == h {
		delete(m.active, h.key)
	}
}
