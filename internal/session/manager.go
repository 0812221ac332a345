package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("call session not found")

// entry pairs a call with its own lock so that near-simultaneous webhooks for
// the same call (a status callback racing a speech result) are serialized
// without blocking unrelated calls.
type entry struct {
	mu   sync.Mutex
	call *Call
}

// Manager owns all active call sessions, keyed by the telephony platform's
// call ID. Sessions are created on first contact and evicted on terminal
// stages, hangup callbacks, or inactivity.
type Manager struct {
	mu                sync.RWMutex
	calls             map[string]*entry
	inactivityTimeout time.Duration
	defaultLanguage   Language
	onExpire          func(*Call)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		calls:             make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
		defaultLanguage:   LangEnglish,
	}
}

func (m *Manager) SetExpireHook(hook func(*Call)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// WithCall runs fn with exclusive access to the session for callID, creating
// the session on first contact. Mutations made by fn are retained. fn must
// not call back into the Manager for the same call.
func (m *Manager) WithCall(callID, from string, fn func(*Call) error) error {
	e := m.lookupOrCreate(callID, from)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.call.LastActivityAt = time.Now().UTC()
	return fn(e.call)
}

func (m *Manager) lookupOrCreate(callID, from string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.calls[callID]; ok {
		return e
	}
	now := time.Now().UTC()
	e := &entry{call: &Call{
		CallID:         callID,
		From:           from,
		Language:       m.defaultLanguage,
		Stage:          StageGreeting,
		Slots:          make(map[Slot]string),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}}
	m.calls[callID] = e
	return e
}

// Get returns a snapshot of the session for callID.
func (m *Manager) Get(callID string) (*Call, error) {
	m.mu.RLock()
	e, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.call), nil
}

// Evict removes the session for callID, returning its final snapshot.
func (m *Manager) Evict(callID string) (*Call, error) {
	m.mu.Lock()
	e, ok := m.calls[callID]
	if ok {
		delete(m.calls, callID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.call.Status = StatusEnded
	return clone(e.call), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// StartJanitor evicts sessions with no webhook activity within the
// inactivity timeout. The telephony platform does not always deliver a
// completed callback, so this is the backstop for abandoned calls.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Call

	m.mu.Lock()
	for id, e := range m.calls {
		e.mu.Lock()
		idle := now.Sub(e.call.LastActivityAt) >= m.inactivityTimeout
		if idle {
			e.call.Status = StatusEnded
			expired = append(expired, clone(e.call))
			delete(m.calls, id)
		}
		e.mu.Unlock()
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func clone(c *Call) *Call {
	cp := *c
	cp.Slots = make(map[Slot]string, len(c.Slots))
	for k, v := range c.Slots {
		cp.Slots[k] = v
	}
	cp.Offered = append([]TimeSlot(nil), c.Offered...)
	return &cp
}
