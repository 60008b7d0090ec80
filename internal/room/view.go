package room

import (
	"time"

	"okey/internal/tiles"
)

// Summary is one row of the lobby list.
type Summary struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	PlayerCount int       `json:"playerCount"`
	State       State     `json:"gameState"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicPlayer is a seat with its hand reduced to a count.
type PublicPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	IsBot     bool   `json:"isBot"`
	HandCount int    `json:"handCount"`
	Score     int    `json:"score"`
}

// PublicRoom is the room as every seat may see it: no hands, no draw pile
// contents. Discard piles are face up and stay visible.
type PublicRoom struct {
	ID        string                  `json:"id"`
	State     State                   `json:"gameState"`
	Players   []PublicPlayer          `json:"players"`
	TurnIndex int                     `json:"turnIndex"`
	DeckSize  int                     `json:"deckSize"`
	Discards  map[string][]tiles.Tile `json:"discards"`
	Indicator *tiles.Tile             `json:"indicatorTile,omitempty"`
	Okey      *tiles.Okey             `json:"okeyTile,omitempty"`
}

// SeatView is the private payload for one seat.
type SeatView struct {
	RoomID    string         `json:"roomId"`
	Hand      []tiles.Tile   `json:"hand"`
	TurnIndex int            `json:"turnIndex"`
	Indicator *tiles.Tile    `json:"indicatorTile,omitempty"`
	Okey      *tiles.Okey    `json:"okeyTile,omitempty"`
	DeckSize  int            `json:"deckSize"`
	Players   []PublicPlayer `json:"players"`
}

func (r *Room) summary() Summary {
	s := Summary{
		ID:          r.ID,
		PlayerCount: len(r.Players),
		State:       r.State,
		CreatedAt:   r.CreatedAt,
	}
	if h := r.Host(); h != nil {
		s.Host = h.Name
	}
	return s
}

func (r *Room) publicPlayers() []PublicPlayer {
	players := make([]PublicPlayer, len(r.Players))
	for i, p := range r.Players {
		players[i] = PublicPlayer{
			ID:        p.ID,
			Name:      p.Name,
			IsHost:    p.IsHost,
			IsBot:     p.IsBot,
			HandCount: len(p.Hand),
			Score:     p.Score,
		}
	}
	return players
}

// Public masks r. The returned value shares no memory with r.
func (r *Room) Public() PublicRoom {
	c := r.clone()
	return PublicRoom{
		ID:        c.ID,
		State:     c.State,
		Players:   c.publicPlayers(),
		TurnIndex: c.TurnIndex,
		DeckSize:  len(c.Deck),
		Discards:  c.Discards,
		Indicator: c.Indicator,
		Okey:      c.Okey,
	}
}

func (r *Room) seatView(seat int) SeatView {
	c := r.clone()
	return SeatView{
		RoomID:    c.ID,
		Hand:      c.Players[seat].Hand,
		TurnIndex: c.TurnIndex,
		Indicator: c.Indicator,
		Okey:      c.Okey,
		DeckSize:  len(c.Deck),
		Players:   c.publicPlayers(),
	}
}
