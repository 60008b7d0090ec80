package room

import (
	"sort"
	"sync"
)

// Store holds live rooms by code. The Registry serializes all mutations;
// implementations only need to be safe for the Registry's own use.
type Store interface {
	Get(code string) (*Room, bool)
	Put(r *Room)
	Delete(code string)
	// List returns every room, oldest first.
	List() []*Room
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

func (s *MemoryStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	return r, ok
}

func (s *MemoryStore) Put(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
}

func (s *MemoryStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *MemoryStore) List() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}
