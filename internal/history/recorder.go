// Package history journals room events to SQLite so finished and abandoned
// games can be inspected after the fact.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"okey/internal/room"
	"okey/internal/storage"
)

// Entry is one journaled move as served over HTTP.
type Entry struct {
	Seq      int       `json:"seq"`
	Kind     string    `json:"kind"`
	PlayerID string    `json:"playerId,omitempty"`
	Source   string    `json:"source,omitempty"`
	TileID   int       `json:"tileId,omitempty"`
	At       time.Time `json:"at"`
}

// RoomRecord is one journaled room as served over HTTP.
type RoomRecord struct {
	Code      string     `json:"code"`
	Host      string     `json:"host"`
	Status    string     `json:"status"`
	Seats     int        `json:"seats"`
	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// StatusClosed marks a room the registry has dropped.
const StatusClosed = "CLOSED"

var ErrUnknownStatus = errors.New("unknown room status")

// Recorder writes registry events to a storage.Store.
type Recorder struct {
	store *storage.Store
	log   *zap.Logger
}

func NewRecorder(store *storage.Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log}
}

// Run records events until ctx is done or the channel closes. Write failures
// are logged and never stop the loop.
func (r *Recorder) Run(ctx context.Context, events <-chan room.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := r.Record(e); err != nil {
				r.log.Error("journal write failed",
					zap.String("room", e.RoomCode),
					zap.String("kind", string(e.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

// Record journals a single event.
func (r *Recorder) Record(e room.Event) error {
	switch e.Kind {
	case room.EventRoomCreated:
		if err := r.store.CreateRoom(e.RoomCode, e.Name); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		return r.move(e, "", 0)
	case room.EventPlayerJoined, room.EventBotAdded, room.EventPlayerLeft, room.EventGameStarted:
		if err := r.store.UpdateRoom(e.RoomCode, string(e.State), e.Seats); err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		return r.move(e, "", 0)
	case room.EventRoomClosed:
		if err := r.move(e, "", 0); err != nil {
			return err
		}
		if err := r.store.CloseRoom(e.RoomCode); err != nil {
			return fmt.Errorf("close room: %w", err)
		}
		return nil
	case room.EventTileDrawn, room.EventBotDraw:
		// A deck draw is private to the drawer; only the source is public.
		tileID := 0
		if e.Source == room.SourceDiscard && e.Tile != nil {
			tileID = e.Tile.ID
		}
		return r.move(e, string(e.Source), tileID)
	case room.EventTileDiscarded, room.EventBotMove:
		tileID := 0
		if e.Tile != nil {
			tileID = e.Tile.ID
		}
		return r.move(e, "", tileID)
	default:
		r.log.Debug("event not journaled", zap.String("kind", string(e.Kind)))
		return nil
	}
}

func (r *Recorder) move(e room.Event, source string, tileID int) error {
	seq, err := r.store.RecordMove(e.RoomCode, string(e.Kind), e.PlayerID, source, tileID)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Kind, err)
	}
	r.log.Debug("journaled", zap.String("room", e.RoomCode), zap.String("kind", string(e.Kind)), zap.Int("seq", seq))
	return nil
}

// History returns a room's journal in order. An unknown room has an empty
// history.
func (r *Recorder) History(code string) ([]Entry, error) {
	moves, err := r.store.ListMoves(room.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(moves))
	for i, m := range moves {
		out[i] = Entry{
			Seq:      m.Seq,
			Kind:     m.Kind,
			PlayerID: m.PlayerID,
			Source:   m.Source,
			TileID:   m.TileID,
			At:       m.At,
		}
	}
	return out, nil
}

// Rooms lists journaled rooms, newest first. An empty status lists them all;
// otherwise it must name a room state or CLOSED, in any case.
func (r *Recorder) Rooms(status string) ([]RoomRecord, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "", string(room.StateWaiting), string(room.StatePlaying), string(room.StatePaused), StatusClosed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	rows, err := r.store.ListRooms(status)
	if err != nil {
		return nil, err
	}
	out := make([]RoomRecord, len(rows))
	for i, row := range rows {
		out[i] = RoomRecord{
			Code:      row.Code,
			Host:      row.Host,
			Status:    row.Status,
			Seats:     row.Seats,
			CreatedAt: row.CreatedAt,
		}
		if row.ClosedAt.Valid {
			closed := row.ClosedAt.Time
			out[i].ClosedAt = &closed
		}
	}
	return out, nil
}
