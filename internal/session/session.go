package session

import (
	"sync"
	"time"
)

// Session is one connected client. Its ID is also the player id the room
// registry seats it under.
type Session struct {
	ID          string
	Send        chan []byte // outbound messages
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

func newSession(id string, buffer int, now time.Time) *Session {
	return &Session{
		ID:          id,
		Send:        make(chan []byte, buffer),
		ConnectedAt: now,
	}
}

// Deliver queues msg without blocking. It reports false when the buffer is
// full or the session is closed.
func (s *Session) Deliver(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.Send <- msg:
		return true
	default:
		return false
	}
}

// close ends the Send channel, which stops the connection's writer.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Send)
	}
}
