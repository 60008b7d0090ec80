package room

import (
	"time"

	"okey/internal/tiles"
)

// State is the room lifecycle.
type State string

const (
	StateWaiting State = "WAITING"
	StatePlaying State = "PLAYING"
	// StatePaused is entered when a seat leaves mid-game. Play does not resume.
	StatePaused State = "PAUSED"
)

// Source is where a draw takes its tile from.
type Source string

const (
	SourceDeck    Source = "deck"
	SourceDiscard Source = "discard"
)

const (
	MaxPlayers = tiles.MaxSeats
	MinPlayers = 2
	CodeLength = 6
)

// Player is one seat at the table.
type Player struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	IsHost bool         `json:"isHost"`
	IsBot  bool         `json:"isBot"`
	Hand   []tiles.Tile `json:"hand"`
	Score  int          `json:"score"`
}

// Room is one table. Seat order in Players is turn order.
type Room struct {
	ID        string                  `json:"id"`
	Players   []*Player               `json:"players"`
	State     State                   `json:"gameState"`
	Deck      []tiles.Tile            `json:"deck"`
	Discards  map[string][]tiles.Tile `json:"discards"`
	TurnIndex int                     `json:"turnIndex"`
	Indicator *tiles.Tile             `json:"indicatorTile,omitempty"`
	Okey      *tiles.Okey             `json:"okeyTile,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`

	// pending bot turn; see bot.go
	botTask  uint64
	botTimer *time.Timer
}

func newRoom(code string, now time.Time) *Room {
	return &Room{
		ID:        code,
		State:     StateWaiting,
		Discards:  make(map[string][]tiles.Tile),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Room) seatOf(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Host returns the hosting seat, or nil.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// Current returns the seat whose turn it is, or nil outside of play.
func (r *Room) Current() *Player {
	if r.TurnIndex < 0 || r.TurnIndex >= len(r.Players) {
		return nil
	}
	return r.Players[r.TurnIndex]
}

func (r *Room) prevSeat(seat int) int {
	n := len(r.Players)
	return (seat - 1 + n) % n
}

func (r *Room) humans() int {
	n := 0
	for _, p := range r.Players {
		if !p.IsBot {
			n++
		}
	}
	return n
}

// clone returns a deep copy without scheduler state. Registry operations hand
// out clones so callers never alias live state.
func (r *Room) clone() *Room {
	c := &Room{
		ID:        r.ID,
		Players:   make([]*Player, len(r.Players)),
		State:     r.State,
		Deck:      append([]tiles.Tile(nil), r.Deck...),
		Discards:  make(map[string][]tiles.Tile, len(r.Discards)),
		TurnIndex: r.TurnIndex,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for i, p := range r.Players {
		cp := *p
		cp.Hand = append([]tiles.Tile(nil), p.Hand...)
		c.Players[i] = &cp
	}
	for id, pile := range r.Discards {
		c.Discards[id] = append([]tiles.Tile(nil), pile...)
	}
	if r.Indicator != nil {
		ind := *r.Indicator
		c.Indicator = &ind
	}
	if r.Okey != nil {
		ok := *r.Okey
		c.Okey = &ok
	}
	return c
}

// TileCount is the number of tiles in deck, hands and discard piles.
func (r *Room) TileCount() int {
	n := len(r.Deck)
	for _, p := range r.Players {
		n += len(p.Hand)
	}
	for _, pile := range r.Discards {
		n += len(pile)
	}
	return n
}
