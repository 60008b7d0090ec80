package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBuffer is the outbound queue length per connection.
const DefaultBuffer = 64

// Manager tracks every live connection.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	buffer   int
	log      *zap.Logger
}

// NewManager creates a connection manager. A buffer of zero or less uses
// DefaultBuffer.
func NewManager(buffer int, log *zap.Logger) *Manager {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		buffer:   buffer,
		log:      log,
	}
}

// Connect registers a new connection under a fresh id.
func (m *Manager) Connect() *Session {
	s := newSession(uuid.NewString(), m.buffer, time.Now())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Debug("connection opened", zap.String("conn", s.ID))
	return s
}

// Disconnect removes a connection and closes its queue. Unknown ids are
// ignored.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.close()
		m.log.Debug("connection closed", zap.String("conn", id))
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SendTo delivers msg to each listed connection that is still live and
// returns how many accepted it. Ids without a connection (bots, departed
// players) are skipped.
func (m *Manager) SendTo(ids []string, msg []byte) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()
	return m.deliver(targets, msg)
}

// Broadcast delivers msg to every live connection.
func (m *Manager) Broadcast(msg []byte) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		targets = append(targets, s)
	}
	m.mu.RUnlock()
	return m.deliver(targets, msg)
}

func (m *Manager) deliver(targets []*Session, msg []byte) int {
	n := 0
	for _, s := range targets {
		if s.Deliver(msg) {
			n++
			continue
		}
		// drop message if buffer full
		m.log.Warn("outbound message dropped", zap.String("conn", s.ID))
	}
	return n
}
