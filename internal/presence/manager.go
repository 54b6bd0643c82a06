package presence

import (
	"sync"

	"chat-frontend/web/internal/session"
)

// Manager owns one scheduler per signed-in browser session. StartSession
// and StopSession bracket the session lifecycle; StopSession cancels
// the timer and visibility delivery in one operation.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory func(store *session.Store) *Scheduler
}

type entry struct {
	sched *Scheduler
	stop  func()
}

// NewManager returns a manager that builds schedulers with factory.
// The factory is called once per StartSession.
func NewManager(factory func(store *session.Store) *Scheduler) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		factory: factory,
	}
}

// StartSession starts a scheduler for sid. A second call for a live sid
// is a no-op, so cookie rehydration cannot double-start a heartbeat.
func (m *Manager) StartSession(sid string, store *session.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[sid]; ok {
		return
	}
	sched := m.factory(store)
	m.entries[sid] = &entry{sched: sched, stop: sched.Start()}
}

// StopSession tears down the scheduler for sid. Idempotent.
func (m *Manager) StopSession(sid string) {
	m.mu.Lock()
	e, ok := m.entries[sid]
	if ok {
		delete(m.entries, sid)
	}
	m.mu.Unlock()
	if ok {
		e.stop()
	}
}

// Visibility forwards a page-visibility transition to sid's scheduler.
// Unknown sids are ignored.
func (m *Manager) Visibility(sid string, visible bool) {
	m.mu.Lock()
	e, ok := m.entries[sid]
	m.mu.Unlock()
	if ok {
		e.sched.Visibility(visible)
	}
}

// Active reports whether sid has a running scheduler.
func (m *Manager) Active(sid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sid]
	return ok
}

// StopAll tears down every scheduler. Used at server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range entries {
		e.stop()
	}
}
