// Package window keeps the bounded FIFO of scoring snapshots.
package window

import (
	"fmt"

	"github.com/rewired-gh/liqoracle/internal/models"
)

// MinCapacity is the smallest window able to produce a non-degenerate
// transition volatility.
const MinCapacity = 3

// Manager is a fixed-capacity circular buffer of snapshots. Pushing into a
// full window evicts the oldest entry. Not safe for concurrent use.
type Manager struct {
	data []models.Snapshot
	head int // index of the next write
	size int
}

// New creates an empty window.
func New(capacity int) (*Manager, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: window capacity must be at least %d, got %d",
			models.ErrInputShape, MinCapacity, capacity)
	}
	return &Manager{data: make([]models.Snapshot, capacity)}, nil
}

// Push appends a snapshot, evicting the oldest one when full. O(1).
func (m *Manager) Push(s models.Snapshot) {
	m.data[m.head] = s
	m.head = (m.head + 1) % len(m.data)
	if m.size < len(m.data) {
		m.size++
	}
}

// Clear drops every entry.
func (m *Manager) Clear() {
	clear(m.data)
	m.head = 0
	m.size = 0
}

// All returns the live snapshots, oldest first.
func (m *Manager) All() []models.Snapshot {
	out := make([]models.Snapshot, 0, m.size)
	start := (m.head - m.size + len(m.data)) % len(m.data)
	for i := 0; i < m.size; i++ {
		out = append(out, m.data[(start+i)%len(m.data)])
	}
	return out
}

// Preview returns what All would return after Push(s), without mutating.
func (m *Manager) Preview(s models.Snapshot) []models.Snapshot {
	out := m.All()
	if len(out) == len(m.data) {
		out = out[1:]
	}
	return append(out, s)
}

// Latest returns the newest snapshot.
func (m *Manager) Latest() (models.Snapshot, bool) {
	if m.size == 0 {
		return models.Snapshot{}, false
	}
	return m.data[(m.head-1+len(m.data))%len(m.data)], true
}

func (m *Manager) Len() int { return m.size }

func (m *Manager) Cap() int { return len(m.data) }

// Full reports whether the window holds Cap snapshots.
func (m *Manager) Full() bool { return m.size == len(m.data) }
