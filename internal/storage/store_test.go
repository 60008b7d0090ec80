package storage

import (
	"database/sql"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateRoom(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRoom("ABC123", "Alice"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	row, err := s.GetRoom("ABC123")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if row.Host != "Alice" {
		t.Fatalf("expected host Alice, got %s", row.Host)
	}
	if row.Status != "WAITING" || row.Seats != 1 {
		t.Fatalf("expected WAITING with 1 seat, got %s/%d", row.Status, row.Seats)
	}
	if row.CreatedAt.IsZero() {
		t.Fatal("expected non-zero CreatedAt")
	}
	if row.ClosedAt.Valid {
		t.Fatal("new room should not be closed")
	}
}

func TestGetRoomNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRoom("NOPE00")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpdateRoom(t *testing.T) {
	s := newTestStore(t)
	s.CreateRoom("ABC123", "Alice")

	if err := s.UpdateRoom("ABC123", "PLAYING", 3); err != nil {
		t.Fatalf("update room: %v", err)
	}
	row, err := s.GetRoom("ABC123")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if row.Status != "PLAYING" || row.Seats != 3 {
		t.Fatalf("expected PLAYING with 3 seats, got %s/%d", row.Status, row.Seats)
	}
}

func TestCloseRoomKeepsMoves(t *testing.T) {
	s := newTestStore(t)
	s.CreateRoom("ABC123", "Alice")
	s.RecordMove("ABC123", "tile_discarded", "alice", "", 17)

	if err := s.CloseRoom("ABC123"); err != nil {
		t.Fatalf("close room: %v", err)
	}
	row, _ := s.GetRoom("ABC123")
	if row.Status != "CLOSED" || !row.ClosedAt.Valid {
		t.Fatalf("expected CLOSED with closed_at, got %+v", row)
	}
	moves, err := s.ListMoves("ABC123")
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("expected moves kept after close, got %d", len(moves))
	}
}

func TestCreateRoomReusesCode(t *testing.T) {
	s := newTestStore(t)
	s.CreateRoom("ABC123", "Alice")
	s.RecordMove("ABC123", "tile_discarded", "alice", "", 17)
	s.CloseRoom("ABC123")

	if err := s.CreateRoom("ABC123", "Bob"); err != nil {
		t.Fatalf("recreate room: %v", err)
	}
	row, _ := s.GetRoom("ABC123")
	if row.Host != "Bob" || row.Status != "WAITING" || row.ClosedAt.Valid {
		t.Fatalf("expected a fresh room for Bob, got %+v", row)
	}
	moves, _ := s.ListMoves("ABC123")
	if len(moves) != 0 {
		t.Fatalf("expected old moves dropped, got %d", len(moves))
	}
}

func TestListRooms(t *testing.T) {
	s := newTestStore(t)
	s.CreateRoom("AAA111", "A")
	s.CreateRoom("BBB222", "B")
	s.CreateRoom("CCC333", "C")
	s.UpdateRoom("BBB222", "PLAYING", 2)

	all, err := s.ListRooms("")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(all))
	}

	playing, err := s.ListRooms("PLAYING")
	if err != nil {
		t.Fatalf("list playing: %v", err)
	}
	if len(playing) != 1 || playing[0].Code != "BBB222" {
		t.Fatalf("expected only BBB222 playing, got %+v", playing)
	}

	none, err := s.ListRooms("CLOSED")
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no closed rooms, got %d", len(none))
	}
}

func TestRecordMoveSequence(t *testing.T) {
	s := newTestStore(t)
	s.CreateRoom("AAA111", "A")
	s.CreateRoom("BBB222", "B")

	for i, kind := range []string{"game_started", "tile_discarded", "tile_drawn"} {
		seq, err := s.RecordMove("AAA111", kind, "alice", "", i)
		if err != nil {
			t.Fatalf("record %s: %v", kind, err)
		}
		if seq != i+1 {
			t.Fatalf("expected seq %d, got %d", i+1, seq)
		}
	}
	if seq, _ := s.RecordMove("BBB222", "game_started", "", "", 0); seq != 1 {
		t.Fatalf("sequences are per room, got %d", seq)
	}

	moves, err := s.ListMoves("AAA111")
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 3 {
		t.Fatalf("expected 3 moves, got %d", len(moves))
	}
	if moves[1].Kind != "tile_discarded" || moves[1].TileID != 1 || moves[1].PlayerID != "alice" {
		t.Fatalf("unexpected move %+v", moves[1])
	}
	if moves[2].At.IsZero() {
		t.Fatal("expected a timestamp on every move")
	}
}

func TestListMovesEmpty(t *testing.T) {
	s := newTestStore(t)
	moves, err := s.ListMoves("NOPE00")
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 0 {
		t.Fatalf("expected no moves, got %d", len(moves))
	}
}
