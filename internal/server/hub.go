package server

import (
	"context"

	"go.uber.org/zap"

	"okey/internal/room"
	"okey/internal/session"
	"okey/internal/tiles"
)

// Hub turns registry events into pushes to connected clients. It decides
// who sees what; the registry never talks to connections.
type Hub struct {
	registry *room.Registry
	sessions *session.Manager
	log      *zap.Logger
}

func NewHub(registry *room.Registry, sessions *session.Manager, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{registry: registry, sessions: sessions, log: log}
}

type drewPayload struct {
	PlayerID string      `json:"playerId"`
	Source   room.Source `json:"source"`
}

type discardedPayload struct {
	PlayerID string     `json:"playerId"`
	Tile     tiles.Tile `json:"tile"`
	NextTurn int        `json:"nextTurn"`
}

type roomClosedPayload struct {
	RoomCode string `json:"roomCode"`
}

// Run dispatches events until ctx is done or the channel closes.
func (h *Hub) Run(ctx context.Context, events <-chan room.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.dispatch(e)
		}
	}
}

func (h *Hub) dispatch(e room.Event) {
	switch e.Kind {
	case room.EventRoomCreated:
		h.roomsList()

	case room.EventPlayerJoined, room.EventBotAdded, room.EventPlayerLeft:
		h.roomUpdate(e.RoomCode)
		h.roomsList()

	case room.EventRoomClosed:
		h.sessions.SendTo(e.Players, encode(msgRoomClosed, "", roomClosedPayload{RoomCode: e.RoomCode}))
		h.roomsList()

	case room.EventGameStarted:
		for _, id := range h.members(e.RoomCode) {
			view, err := h.registry.SeatView(e.RoomCode, id)
			if err != nil {
				continue
			}
			h.sessions.SendTo([]string{id}, encode(msgGameStarted, "", view))
		}
		h.roomUpdate(e.RoomCode)
		h.roomsList()

	case room.EventTileDrawn:
		// The drawer already has the tile in its reply.
		others := make([]string, 0, room.MaxPlayers)
		for _, id := range h.members(e.RoomCode) {
			if id != e.PlayerID {
				others = append(others, id)
			}
		}
		h.sessions.SendTo(others, encode(msgPlayerDrew, "", drewPayload{PlayerID: e.PlayerID, Source: e.Source}))

	case room.EventBotDraw:
		h.sessions.SendTo(h.members(e.RoomCode), encode(msgPlayerDrew, "", drewPayload{PlayerID: e.PlayerID, Source: e.Source}))

	case room.EventTileDiscarded, room.EventBotMove:
		if e.Tile == nil {
			return
		}
		h.sessions.SendTo(h.members(e.RoomCode), encode(msgPlayerDiscarded, "", discardedPayload{
			PlayerID: e.PlayerID,
			Tile:     *e.Tile,
			NextTurn: e.NextTurn,
		}))

	default:
		h.log.Debug("event not forwarded", zap.String("kind", string(e.Kind)))
	}
}

// members returns the human seats of a room, or nil once it is gone.
func (h *Hub) members(code string) []string {
	pub, err := h.registry.Public(code)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(pub.Players))
	for _, p := range pub.Players {
		if !p.IsBot {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (h *Hub) roomUpdate(code string) {
	pub, err := h.registry.Public(code)
	if err != nil {
		return
	}
	ids := make([]string, 0, len(pub.Players))
	for _, p := range pub.Players {
		if !p.IsBot {
			ids = append(ids, p.ID)
		}
	}
	h.sessions.SendTo(ids, encode(msgRoomUpdate, "", pub))
}

func (h *Hub) roomsList() {
	h.sessions.Broadcast(encode(msgRoomsList, "", h.registry.List()))
}
