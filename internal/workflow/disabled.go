package workflow

import "sync"

// DisabledSet remembers orders whose action already ran from this session.
// It only gates repeated clicks; the backend's sentTo checks stay the
// source of truth and the two may disagree until the next listing.
type DisabledSet interface {
	IsDisabled(orderID int64) bool
	Disable(orderID int64) error
}

// MemoryDisabled is a process-scoped DisabledSet
type MemoryDisabled struct {
	mu  sync.RWMutex
	ids map[int64]bool
}

func NewMemoryDisabled() *MemoryDisabled {
	return &MemoryDisabled{ids: make(map[int64]bool)}
}

func (m *MemoryDisabled) IsDisabled(orderID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[orderID]
}

func (m *MemoryDisabled) Disable(orderID int64) error {
	m.mu.Lock()
	m.ids[orderID] = true
	m.mu.Unlock()
	return nil
}

// Snapshot copies the current set
func (m *MemoryDisabled) Snapshot() map[int64]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]bool, len(m.ids))
	for k, v := range m.ids {
		out[k] = v
	}
	return out
}
