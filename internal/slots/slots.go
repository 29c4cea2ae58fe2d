// Package slots limits how many booking legs may poll a provider at once.
package slots

import (
	"sort"
	"sync"

	"github.com/example/railbot/internal/rail"
)

type Info struct {
	SessionID int64
	OwnerID   string
	ChannelID string
	Provider  rail.Provider
}

// Manager is a fixed-capacity admission table keyed by session id. There is
// no queue: a denied Acquire fails immediately.
type Manager struct {
	mu       sync.Mutex
	capacity int
	slots    map[int64]Info
}

func NewManager(capacity int) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager{capacity: capacity, slots: make(map[int64]Info)}
}

// Acquire grants a slot iff fewer than Capacity slots are held. A session id
// that already holds a slot is not granted a second one.
func (m *Manager) Acquire(sessionID int64, ownerID, channelID string, p rail.Provider) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.slots) >= m.capacity {
		return false
	}
	if _, ok := m.slots[sessionID]; ok {
		return false
	}
	m.slots[sessionID] = Info{SessionID: sessionID, OwnerID: ownerID, ChannelID: channelID, Provider: p}
	return true
}

// Release reports whether the slot existed. Releasing twice is a no-op.
func (m *Manager) Release(sessionID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[sessionID]; !ok {
		return false
	}
	delete(m.slots, sessionID)
	return true
}

func (m *Manager) ForceReleaseAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.slots)
	m.slots = make(map[int64]Info)
	return n
}

// ForceReleaseByChannel drops every slot opened from the channel. A round
// trip holds two.
func (m *Manager) ForceReleaseByChannel(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := false
	for id, s := range m.slots {
		if s.ChannelID == channelID {
			delete(m.slots, id)
			released = true
		}
	}
	return released
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *Manager) Capacity() int { return m.capacity }

func (m *Manager) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity - len(m.slots)
}

func (m *Manager) Full() bool { return m.Available() <= 0 }

// List returns held slots ordered by session id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (m *Manager) ByOwner(ownerID string) []Info {
	var out []Info
	for _, s := range m.List() {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out
}
