package room

import (
	"sync"

	"okey/internal/tiles"
)

// EventKind identifies what happened in a room.
type EventKind string

const (
	EventRoomCreated   EventKind = "room_created"
	EventPlayerJoined  EventKind = "player_joined"
	EventBotAdded      EventKind = "bot_added"
	EventPlayerLeft    EventKind = "player_left"
	EventRoomClosed    EventKind = "room_closed"
	EventGameStarted   EventKind = "game_started"
	EventTileDrawn     EventKind = "tile_drawn"
	EventTileDiscarded EventKind = "tile_discarded"
	EventBotDraw       EventKind = "bot_draw"
	EventBotMove       EventKind = "bot_move"
)

// Event is published after every successful mutation. Tile fields carry the
// tile that moved; subscribers decide what is safe to show to whom.
type Event struct {
	Kind     EventKind
	RoomCode string
	State    State
	PlayerID string
	Name     string
	Source   Source
	// Tile is the drawn tile for draw events and the discarded tile for
	// discard events.
	Tile      *tiles.Tile
	DrawnTile *tiles.Tile // bot_move only; nil when the bot skipped its draw
	NextTurn  int
	// Seats is the number of seats after the change.
	Seats int
	// Players lists the human seats affected by room_closed.
	Players []string
}

// bus fans events out to subscribers without ever blocking the publisher.
type bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// publish returns the number of subscribers that dropped the event.
func (b *bus) publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
