package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RoomRow is one room in the journal.
type RoomRow struct {
	Code      string
	Host      string
	Status    string // "WAITING", "PLAYING", "PAUSED", "CLOSED"
	Seats     int
	CreatedAt time.Time
	ClosedAt  sql.NullTime
}

// MoveRow is one journaled event in a room.
type MoveRow struct {
	ID       int64
	RoomCode string
	Seq      int
	Kind     string
	PlayerID string
	Source   string
	TileID   int // 0 when the tile stays private
	At       time.Time
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: writes are serialized anyway, and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			code       TEXT PRIMARY KEY,
			host       TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'WAITING',
			seats      INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			closed_at  DATETIME
		);
		CREATE TABLE IF NOT EXISTS moves (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			room_code TEXT NOT NULL REFERENCES rooms(code),
			seq       INTEGER NOT NULL,
			kind      TEXT NOT NULL,
			player_id TEXT NOT NULL DEFAULT '',
			source    TEXT NOT NULL DEFAULT '',
			tile_id   INTEGER NOT NULL DEFAULT 0,
			at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS moves_room_seq ON moves (room_code, seq);
	`)
	return err
}

// CreateRoom records a new room. Codes are reused once a room closes, so an
// existing row for code is replaced and its moves dropped.
func (s *Store) CreateRoom(code, host string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM moves WHERE room_code = ?", code); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO rooms (code, host, status, seats, created_at, closed_at)
		VALUES (?, ?, 'WAITING', 1, CURRENT_TIMESTAMP, NULL)
		ON CONFLICT(code) DO UPDATE SET
			host = excluded.host, status = excluded.status, seats = excluded.seats,
			created_at = excluded.created_at, closed_at = NULL
	`, code, host); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateRoom changes a room's status and seat count.
func (s *Store) UpdateRoom(code, status string, seats int) error {
	_, err := s.db.Exec("UPDATE rooms SET status = ?, seats = ? WHERE code = ?", status, seats, code)
	return err
}

// CloseRoom marks a room closed. Its moves are kept.
func (s *Store) CloseRoom(code string) error {
	_, err := s.db.Exec("UPDATE rooms SET status = 'CLOSED', closed_at = CURRENT_TIMESTAMP WHERE code = ?", code)
	return err
}

// GetRoom retrieves a room by code.
func (s *Store) GetRoom(code string) (*RoomRow, error) {
	row := s.db.QueryRow("SELECT code, host, status, seats, created_at, closed_at FROM rooms WHERE code = ?", code)
	var rr RoomRow
	if err := row.Scan(&rr.Code, &rr.Host, &rr.Status, &rr.Seats, &rr.CreatedAt, &rr.ClosedAt); err != nil {
		return nil, err
	}
	return &rr, nil
}

// ListRooms returns all rooms with the given status (or all if status is empty).
func (s *Store) ListRooms(status string) ([]RoomRow, error) {
	const cols = "SELECT code, host, status, seats, created_at, closed_at FROM rooms"
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(cols + " ORDER BY created_at DESC, code")
	} else {
		rows, err = s.db.Query(cols+" WHERE status = ? ORDER BY created_at DESC, code", status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []RoomRow
	for rows.Next() {
		var rr RoomRow
		if err := rows.Scan(&rr.Code, &rr.Host, &rr.Status, &rr.Seats, &rr.CreatedAt, &rr.ClosedAt); err != nil {
			return nil, err
		}
		result = append(result, rr)
	}
	return result, rows.Err()
}

// RecordMove appends a move to a room's journal and returns its sequence
// number, starting at 1.
func (s *Store) RecordMove(code, kind, playerID, source string, tileID int) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM moves WHERE room_code = ?", code).Scan(&seq); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		"INSERT INTO moves (room_code, seq, kind, player_id, source, tile_id) VALUES (?, ?, ?, ?, ?, ?)",
		code, seq, kind, playerID, source, tileID,
	); err != nil {
		return 0, err
	}
	return seq, tx.Commit()
}

// ListMoves returns a room's journal in order.
func (s *Store) ListMoves(code string) ([]MoveRow, error) {
	rows, err := s.db.Query(
		"SELECT id, room_code, seq, kind, player_id, source, tile_id, at FROM moves WHERE room_code = ? ORDER BY seq",
		code,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []MoveRow
	for rows.Next() {
		var mr MoveRow
		if err := rows.Scan(&mr.ID, &mr.RoomCode, &mr.Seq, &mr.Kind, &mr.PlayerID, &mr.Source, &mr.TileID, &mr.At); err != nil {
			return nil, err
		}
		result = append(result, mr)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
