package locking

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager provides named in-process locks so that long-running jobs
// (rebalance runs, price syncs) never overlap themselves
type Manager struct {
	mu   sync.Mutex
	held map[string]time.Time
	log  zerolog.Logger
}

// NewManager creates a new lock manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		held: make(map[string]time.Time),
		log:  log.With().Str("component", "locking").Logger(),
	}
}

// Acquire takes the named lock, or fails immediately if it is held
func (m *Manager) Acquire(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if since, ok := m.held[name]; ok {
		return fmt.Errorf("lock %q held since %s", name, since.Format(time.RFC3339))
	}

	m.held[name] = time.Now()
	m.log.Debug().Str("lock", name).Msg("Lock acquired")
	return nil
}

// Release frees the named lock. Releasing an unheld lock is a no-op.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, name)
	m.log.Debug().Str("lock", name).Msg("Lock released")
}

// IsHeld reports whether the named lock is currently held
func (m *Manager) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.held[name]
	return ok
}
