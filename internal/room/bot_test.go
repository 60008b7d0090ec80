package room

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"okey/internal/tiles"
)

// waitFor reads events until one of kind arrives.
func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", kind)
			}
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// expectQuiet fails if any event of kind arrives within d.
func expectQuiet(t *testing.T, events <-chan Event, kind EventKind, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				t.Fatalf("unexpected %s event: %+v", kind, e)
			}
		case <-deadline:
			return
		}
	}
}

func TestBotTakesItsTurn(t *testing.T) {
	reg := newTestRegistry(t, WithBotDelays(10*time.Millisecond, 300*time.Millisecond))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.AddBot(code)
	rm, err := reg.StartGame(code)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(rm.Players[0].Hand) != 22 || len(rm.Players[1].Hand) != 21 || len(rm.Players[2].Hand) != 21 {
		t.Fatal("expected hands of 22/21/21")
	}
	if len(rm.Deck) != 42 {
		t.Fatalf("expected 42 tiles left, got %d", len(rm.Deck))
	}
	bot1, bot2 := rm.Players[1].ID, rm.Players[2].ID

	if _, err := reg.DiscardTile(code, "alice", 0); err != nil {
		t.Fatalf("alice discard: %v", err)
	}
	rm = mustGet(t, reg, code)
	if len(rm.Players[0].Hand) != 21 || rm.TurnIndex != 1 {
		t.Fatalf("expected alice at 21 and turn 1, got %d/%d", len(rm.Players[0].Hand), rm.TurnIndex)
	}

	e := waitFor(t, events, EventBotDraw)
	if e.PlayerID != bot1 || e.Source != SourceDeck || e.Tile == nil {
		t.Fatalf("unexpected bot draw %+v", e)
	}
	rm = mustGet(t, reg, code)
	if len(rm.Players[1].Hand) != 22 {
		t.Fatalf("expected bot at 22 after drawing, got %d", len(rm.Players[1].Hand))
	}
	assertConserved(t, rm)

	e = waitFor(t, events, EventBotMove)
	if e.PlayerID != bot1 || e.NextTurn != 2 || e.Tile == nil || e.DrawnTile == nil {
		t.Fatalf("unexpected bot move %+v", e)
	}
	rm = mustGet(t, reg, code)
	if len(rm.Players[1].Hand) != 21 || rm.TurnIndex != 2 {
		t.Fatalf("expected bot at 21 and turn 2, got %d/%d", len(rm.Players[1].Hand), rm.TurnIndex)
	}

	// The second bot follows on its own and hands the turn back.
	e = waitFor(t, events, EventBotMove)
	if e.PlayerID != bot2 || e.NextTurn != 0 {
		t.Fatalf("unexpected second bot move %+v", e)
	}
	rm = mustGet(t, reg, code)
	if rm.TurnIndex != 0 {
		t.Fatalf("expected turn back at 0, got %d", rm.TurnIndex)
	}
	for _, p := range rm.Players {
		if len(p.Hand) != 21 {
			t.Fatalf("%s holds %d", p.ID, len(p.Hand))
		}
	}
	assertConserved(t, rm)
	expectQuiet(t, events, EventBotMove, 100*time.Millisecond)
}

func TestBotTurnCancelledOnLeave(t *testing.T) {
	reg := newTestRegistry(t, WithBotDelays(50*time.Millisecond, 50*time.Millisecond))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.JoinRoom(code, "bob", "Bob")
	reg.StartGame(code)
	reg.DiscardTile(code, "alice", 0)
	before := mustGet(t, reg, code)
	assertConserved(t, before)
	reg.Leave("bob")

	expectQuiet(t, events, EventBotDraw, 250*time.Millisecond)
	rm := mustGet(t, reg, code)
	if rm.State != StatePaused {
		t.Fatalf("expected PAUSED, got %s", rm.State)
	}
	if len(rm.Players[1].Hand) != 21 {
		t.Fatalf("cancelled bot must not draw, holds %d", len(rm.Players[1].Hand))
	}
	if len(rm.Deck) != len(before.Deck) {
		t.Fatalf("deck changed from %d to %d while paused", len(before.Deck), len(rm.Deck))
	}
	// Bob's 21 tiles left with him.
	if got := rm.TileCount(); got != tiles.DeckSize-21 {
		t.Fatalf("expected %d tiles in the paused room, got %d", tiles.DeckSize-21, got)
	}
}

func TestBotTurnCancelledWhenRoomCloses(t *testing.T) {
	reg := newTestRegistry(t, WithBotDelays(50*time.Millisecond, 50*time.Millisecond))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.StartGame(code)
	reg.DiscardTile(code, "alice", 0)
	if res := reg.Leave("alice"); !res.RoomBecameEmpty {
		t.Fatal("expected the room to close")
	}
	expectQuiet(t, events, EventBotDraw, 250*time.Millisecond)
}

func TestStaleBotTaskIgnored(t *testing.T) {
	reg := newTestRegistry(t)
	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.StartGame(code)
	reg.DiscardTile(code, "alice", 0)

	reg.mu.Lock()
	live, _ := reg.store.Get(code)
	botID, task := live.Players[1].ID, live.botTask
	reg.mu.Unlock()
	if task == 0 {
		t.Fatal("expected a pending bot task")
	}

	reg.botDraw(code, botID, task+1)
	reg.botDiscard(code, botID, task+1, nil)
	reg.botDraw(code, "bot_someone_else", task)

	rm := mustGet(t, reg, code)
	if len(rm.Players[1].Hand) != 21 || rm.TurnIndex != 1 {
		t.Fatalf("stale tasks must not mutate the room, bot holds %d at turn %d", len(rm.Players[1].Hand), rm.TurnIndex)
	}
}

func TestBotDealerSkipsDraw(t *testing.T) {
	reg := newTestRegistry(t, WithBotDelays(10*time.Millisecond, 10*time.Millisecond))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	// Seat the bot first by letting the creator leave before the start.
	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.JoinRoom(code, "bob", "Bob")
	reg.Leave("alice")
	rm := mustGet(t, reg, code)
	if !rm.Players[0].IsBot || !rm.Players[1].IsHost {
		t.Fatalf("expected bot at seat 0 and bob hosting, got %+v %+v", rm.Players[0], rm.Players[1])
	}

	if _, err := reg.StartGameAs(code, "bob"); err != nil {
		t.Fatalf("start: %v", err)
	}
	e := waitFor(t, events, EventBotMove)
	if e.DrawnTile != nil {
		t.Fatalf("dealer bot should not draw, drew %v", e.DrawnTile)
	}
	if e.NextTurn != 1 {
		t.Fatalf("expected turn 1, got %d", e.NextTurn)
	}
	rm = mustGet(t, reg, code)
	if len(rm.Players[0].Hand) != 21 || len(rm.Players[1].Hand) != 21 {
		t.Fatal("expected both seats at 21 after the bot's opening discard")
	}
	assertConserved(t, rm)
}

func TestBotDrawsFromDiscardWhenDeckEmpty(t *testing.T) {
	reg := newTestRegistry(t, WithBotDelays(10*time.Millisecond, 10*time.Millisecond))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.StartGame(code)

	reg.mu.Lock()
	live, _ := reg.store.Get(code)
	stash := live.Deck
	live.Deck = nil
	reg.mu.Unlock()

	discarded, err := reg.DiscardTile(code, "alice", 5)
	if err != nil {
		t.Fatalf("alice discard: %v", err)
	}
	e := waitFor(t, events, EventBotDraw)
	if e.Source != SourceDiscard || e.Tile == nil || *e.Tile != discarded {
		t.Fatalf("expected bot to take %v from the discard pile, got %+v", discarded, e)
	}
	waitFor(t, events, EventBotMove)

	reg.mu.Lock()
	live.Deck = stash
	reg.mu.Unlock()
	assertConserved(t, mustGet(t, reg, code))
}

type failingStrategy struct{ calls int }

func (s *failingStrategy) Name() string { return "failing" }

func (s *failingStrategy) ChooseDiscard([]tiles.Tile, *rand.Rand) (int, error) {
	s.calls++
	return -1, errors.New("no opinion")
}

func TestBotStrategyFallback(t *testing.T) {
	s := &failingStrategy{}
	reg := newTestRegistry(t, WithBotDelays(10*time.Millisecond, 10*time.Millisecond), WithStrategy(s))
	events, cancel := reg.Subscribe(64)
	defer cancel()

	code := mustCreate(t, reg, "alice", "Alice")
	reg.AddBot(code)
	reg.StartGame(code)
	reg.DiscardTile(code, "alice", 0)

	e := waitFor(t, events, EventBotMove)
	if e.Tile == nil || e.NextTurn != 0 {
		t.Fatalf("expected a random fallback discard, got %+v", e)
	}
	reg.mu.Lock()
	calls := s.calls
	reg.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected strategy consulted once, got %d", calls)
	}
	assertConserved(t, mustGet(t, reg, code))
}

func TestCloseStopsBots(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), WithBotDelays(30*time.Millisecond, 30*time.Millisecond))
	events, _ := reg.Subscribe(64)

	created, _ := reg.CreateRoom("alice", "Alice")
	code := created.ID
	reg.AddBot(code)
	reg.StartGame(code)
	reg.DiscardTile(code, "alice", 0)
	reg.Close()
	reg.Close()

	for e := range events {
		if e.Kind == EventBotDraw || e.Kind == EventBotMove {
			t.Fatalf("bot acted after close: %+v", e)
		}
	}
	time.Sleep(100 * time.Millisecond)
	rm, err := reg.Get(code)
	if err != nil {
		t.Fatalf("get after close: %v", err)
	}
	if len(rm.Players[1].Hand) != 21 {
		t.Fatalf("bot drew after close, holds %d", len(rm.Players[1].Hand))
	}
}
