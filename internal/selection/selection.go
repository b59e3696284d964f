// Package selection tracks which conversation each live connection is
// currently viewing. Entries live only as long as the connection.
package selection

import "sync"

// Public is the selection of a connection viewing the public chat.
const Public = ""

type Map struct {
	mu      sync.RWMutex
	entries map[string]string
}

func New() *Map {
	return &Map{entries: make(map[string]string)}
}

// Set records that connID is viewing counterpartID (Public for the public chat).
func (m *Map) Set(connID, counterpartID string) {
	m.mu.Lock()
	m.entries[connID] = counterpartID
	m.mu.Unlock()
}

// Get returns the counterpart connID is viewing. Unknown connections are
// reported as viewing the public chat.
func (m *Map) Get(connID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[connID]
}

// IsViewing reports whether connID currently has counterpartID selected.
func (m *Map) IsViewing(connID, counterpartID string) bool {
	if counterpartID == Public {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	current, ok := m.entries[connID]
	return ok && current == counterpartID
}

func (m *Map) Delete(connID string) {
	m.mu.Lock()
	delete(m.entries, connID)
	m.mu.Unlock()
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
