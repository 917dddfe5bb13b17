package payments

import (
	"context"
	"sync"
	"time"
)

// SessionRegistry tracks checkout sessions currently awaiting a terminal
// signal from a provider return handler. Sessions are page-global shared
// state: exactly one per payment session id, owned by the adapter that
// opened it and removed by that adapter on every exit path.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*CheckoutSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*CheckoutSession)}
}

// Open registers a session for the given payment session id. A leftover
// session under the same id is settled as failed and replaced (last writer
// wins, the stale waiter is not left pending).
func (r *SessionRegistry) Open(paymentSessionID string) *CheckoutSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[paymentSessionID]; ok {
		prev.settle(CheckoutSignal{Status: SignalFailed, Reason: "superseded by a newer attempt"})
	}

	s := &CheckoutSession{
		id:  paymentSessionID,
		reg: r,
		ch:  make(chan CheckoutSignal, 1),
	}
	r.sessions[paymentSessionID] = s
	return s
}

// Deliver routes a terminal signal to the awaiting session. Returns false
// when no session is waiting (expired, already settled, or unknown id).
func (r *SessionRegistry) Deliver(paymentSessionID string, sig CheckoutSignal) bool {
	r.mu.Lock()
	s, ok := r.sessions[paymentSessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return s.settle(sig)
}

func (r *SessionRegistry) remove(id string, s *CheckoutSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
}

// CheckoutSession is a single-use rendezvous between an adapter awaiting the
// provider UI outcome and the return handler that reports it. It settles at
// most once; later signals are dropped.
type CheckoutSession struct {
	id   string
	reg  *SessionRegistry
	ch   chan CheckoutSignal
	once sync.Once
}

func (s *CheckoutSession) settle(sig CheckoutSignal) bool {
	delivered := false
	s.once.Do(func() {
		s.ch <- sig
		delivered = true
	})
	return delivered
}

// Await blocks until the session settles, the context is done, or the wait
// elapses. Timeouts settle the session so a late return handler delivery is
// dropped instead of leaking.
func (s *CheckoutSession) Await(ctx context.Context, wait time.Duration) (CheckoutSignal, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sig := <-s.ch:
		return sig, nil
	case <-ctx.Done():
		s.settle(CheckoutSignal{Status: SignalFailed, Reason: "context cancelled"})
		return CheckoutSignal{}, ctx.Err()
	case <-timer.C:
		s.settle(CheckoutSignal{Status: SignalFailed, Reason: "timeout"})
		return CheckoutSignal{}, ErrCheckoutTimeout
	}
}

// Close releases the session slot. Safe to call more than once; the deferred
// call in OpenCheckout guarantees cleanup on success, cancel and error alike.
func (s *CheckoutSession) Close() {
	s.settle(CheckoutSignal{Status: SignalCancelled, Reason: "session closed"})
	s.reg.remove(s.id, s)
}
