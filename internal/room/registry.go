package room

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okey/internal/bot"
	"okey/internal/tiles"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeAttempts = 100

	DefaultBotDrawDelay    = 1500 * time.Millisecond
	DefaultBotDiscardDelay = 1000 * time.Millisecond
)

// Registry owns every live room. All operations, including bot timers firing,
// run one at a time under mu.
type Registry struct {
	mu    sync.Mutex
	store Store
	seats map[string]string // player id -> room code
	bus   *bus

	log          *zap.Logger
	rng          *mrand.Rand
	strategy     bot.Strategy
	drawDelay    time.Duration
	discardDelay time.Duration
	now          func() time.Time

	lastTask uint64
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithRand sets the source used for shuffling, indicator selection and the
// default bot strategy.
func WithRand(rng *mrand.Rand) Option {
	return func(r *Registry) { r.rng = rng }
}

func WithStrategy(s bot.Strategy) Option {
	return func(r *Registry) { r.strategy = s }
}

// WithBotDelays sets the pause before a bot draws and before it discards.
func WithBotDelays(draw, discard time.Duration) Option {
	return func(r *Registry) {
		r.drawDelay = draw
		r.discardDelay = discard
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		seats:        make(map[string]string),
		bus:          newBus(),
		log:          zap.NewNop(),
		rng:          mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
		strategy:     bot.Random{},
		drawDelay:    DefaultBotDrawDelay,
		discardDelay: DefaultBotDiscardDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe returns a channel receiving every event published after the
// call, and a function that ends the subscription. A subscriber that falls
// more than buffer events behind misses events.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	return r.bus.subscribe(buffer)
}

// LeaveResult reports what a Leave did. RoomID is empty when the player was
// not seated anywhere.
type LeaveResult struct {
	RoomID          string `json:"roomId"`
	RoomBecameEmpty bool   `json:"roomBecameEmpty"`
}

// NormalizeCode upper-cases and trims a room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom opens a room with the creator seated as host.
func (r *Registry) CreateRoom(creatorID, name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seats[creatorID]; ok {
		return nil, ErrAlreadyInRoom
	}
	code, err := r.newCode()
	if err != nil {
		return nil, err
	}

	rm := newRoom(code, r.now())
	rm.Players = append(rm.Players, &Player{ID: creatorID, Name: name, IsHost: true})
	r.store.Put(rm)
	r.seats[creatorID] = code

	r.log.Info("room created", zap.String("room", code), zap.String("host", name))
	r.publish(Event{Kind: EventRoomCreated, RoomCode: code, State: rm.State, PlayerID: creatorID, Name: name, Seats: 1})
	return rm.clone(), nil
}

// JoinRoom seats playerID in a waiting room.
func (r *Registry) JoinRoom(code, playerID, name string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.openSeat(code)
	if err != nil {
		return nil, err
	}
	if _, ok := r.seats[playerID]; ok {
		return nil, ErrAlreadyInRoom
	}

	rm.Players = append(rm.Players, &Player{ID: playerID, Name: name})
	rm.UpdatedAt = r.now()
	r.seats[playerID] = rm.ID

	r.log.Info("player joined", zap.String("room", rm.ID), zap.String("player", name))
	r.publish(Event{Kind: EventPlayerJoined, RoomCode: rm.ID, State: rm.State, PlayerID: playerID, Name: name, Seats: len(rm.Players)})
	return rm.clone(), nil
}

// AddBot seats a bot in a waiting room.
func (r *Registry) AddBot(code string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.openSeat(code)
	if err != nil {
		return nil, err
	}
	return r.seatBot(rm), nil
}

// AddBotAs is AddBot restricted to players seated in the room.
func (r *Registry) AddBotAs(code, playerID string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = NormalizeCode(code)
	if _, ok := r.store.Get(code); !ok {
		return nil, ErrRoomNotFound
	}
	if r.seats[playerID] != code {
		return nil, ErrNotInRoom
	}
	rm, err := r.openSeat(code)
	if err != nil {
		return nil, err
	}
	return r.seatBot(rm), nil
}

func (r *Registry) seatBot(rm *Room) *Room {
	p := &Player{
		ID:    "bot_" + uuid.NewString(),
		Name:  fmt.Sprintf("Bot %d", len(rm.Players)+1),
		IsBot: true,
	}
	rm.Players = append(rm.Players, p)
	rm.UpdatedAt = r.now()
	r.seats[p.ID] = rm.ID

	r.log.Info("bot added", zap.String("room", rm.ID), zap.String("bot", p.ID))
	r.publish(Event{Kind: EventBotAdded, RoomCode: rm.ID, State: rm.State, PlayerID: p.ID, Name: p.Name, Seats: len(rm.Players)})
	return rm.clone()
}

func (r *Registry) openSeat(code string) (*Room, error) {
	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	if len(rm.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	if rm.State != StateWaiting {
		return nil, ErrGameAlreadyStarted
	}
	return rm, nil
}

// Leave removes playerID from whichever room seats it. A room left with no
// human seats is closed along with its bots; a room that was playing is
// paused.
func (r *Registry) Leave(playerID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.seats[playerID]
	if !ok {
		return LeaveResult{}
	}
	delete(r.seats, playerID)
	rm, ok := r.store.Get(code)
	if !ok {
		return LeaveResult{}
	}
	seat := rm.seatOf(playerID)
	if seat < 0 {
		return LeaveResult{}
	}

	r.cancelBot(rm)
	leaving := rm.Players[seat]
	rm.Players = slices.Delete(rm.Players, seat, seat+1)
	rm.UpdatedAt = r.now()
	res := LeaveResult{RoomID: code}

	if rm.humans() == 0 {
		r.publish(Event{Kind: EventPlayerLeft, RoomCode: code, State: rm.State, PlayerID: playerID, Name: leaving.Name, Seats: len(rm.Players)})
		r.closeRoom(rm)
		res.RoomBecameEmpty = true
		return res
	}

	if leaving.IsHost {
		for _, p := range rm.Players {
			if !p.IsBot {
				p.IsHost = true
				break
			}
		}
	}
	if seat < rm.TurnIndex {
		rm.TurnIndex--
	}
	if rm.TurnIndex >= len(rm.Players) {
		rm.TurnIndex = 0
	}
	if rm.State == StatePlaying {
		rm.State = StatePaused
		r.log.Info("game paused", zap.String("room", code), zap.String("player", leaving.Name))
	}

	r.log.Info("player left", zap.String("room", code), zap.String("player", leaving.Name))
	r.publish(Event{Kind: EventPlayerLeft, RoomCode: code, State: rm.State, PlayerID: playerID, Name: leaving.Name, Seats: len(rm.Players)})
	return res
}

// closeRoom deletes rm and frees every seat in it.
func (r *Registry) closeRoom(rm *Room) {
	r.cancelBot(rm)
	var humans []string
	for _, p := range rm.Players {
		delete(r.seats, p.ID)
		if !p.IsBot {
			humans = append(humans, p.ID)
		}
	}
	r.store.Delete(rm.ID)
	r.log.Info("room closed", zap.String("room", rm.ID))
	r.publish(Event{Kind: EventRoomClosed, RoomCode: rm.ID, State: rm.State, Players: humans})
}

// StartGame deals a fresh deck to every seat and hands the turn to seat 0.
func (r *Registry) StartGame(code string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.start(rm)
}

// StartGameAs is StartGame restricted to the room's host.
func (r *Registry) StartGameAs(code, playerID string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	if h := rm.Host(); h == nil || h.ID != playerID {
		return nil, ErrNotHost
	}
	return r.start(rm)
}

func (r *Registry) start(rm *Room) (*Room, error) {
	if rm.State != StateWaiting {
		return nil, ErrGameAlreadyStarted
	}
	if len(rm.Players) < MinPlayers {
		return nil, ErrNotEnoughPlayers
	}

	deck := tiles.Shuffle(tiles.NewDeck(), r.rng)
	indicator, okey, err := tiles.SelectIndicator(deck, r.rng)
	if err != nil {
		return nil, fmt.Errorf("start room %s: %w", rm.ID, err)
	}
	hands, rest, err := tiles.Deal(deck, len(rm.Players))
	if err != nil {
		return nil, fmt.Errorf("start room %s: %w", rm.ID, err)
	}

	rm.Discards = make(map[string][]tiles.Tile, len(rm.Players))
	for i, p := range rm.Players {
		p.Hand = hands[i]
		p.Score = 0
		rm.Discards[p.ID] = []tiles.Tile{}
	}
	rm.Deck = rest
	rm.Indicator = &indicator
	rm.Okey = &okey
	rm.TurnIndex = 0
	rm.State = StatePlaying
	rm.UpdatedAt = r.now()

	r.log.Info("game started",
		zap.String("room", rm.ID),
		zap.Int("seats", len(rm.Players)),
		zap.Int("deck", len(rm.Deck)),
		zap.Stringer("indicator", indicator),
	)
	r.publish(Event{Kind: EventGameStarted, RoomCode: rm.ID, State: rm.State, NextTurn: rm.TurnIndex, Seats: len(rm.Players)})
	r.scheduleBot(rm)
	return rm.clone(), nil
}

// actingSeat validates that the room is in play and that playerID holds the
// turn.
func (r *Registry) actingSeat(code, playerID string) (*Room, int, error) {
	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return nil, 0, ErrRoomNotFound
	}
	if rm.State != StatePlaying {
		return nil, 0, ErrGameNotActive
	}
	seat := rm.seatOf(playerID)
	if seat < 0 || seat != rm.TurnIndex {
		return nil, 0, ErrNotYourTurn
	}
	return rm, seat, nil
}

// DrawTile moves one tile into the acting seat's hand, from the draw pile or
// from the top of the previous seat's discard pile.
func (r *Registry) DrawTile(code, playerID string, source Source) (tiles.Tile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, seat, err := r.actingSeat(code, playerID)
	if err != nil {
		return tiles.Tile{}, err
	}
	t, err := r.draw(rm, seat, source)
	if err != nil {
		return tiles.Tile{}, err
	}

	r.publish(Event{Kind: EventTileDrawn, RoomCode: rm.ID, State: rm.State, PlayerID: playerID, Source: source, Tile: &t})
	return t, nil
}

func (r *Registry) draw(rm *Room, seat int, source Source) (tiles.Tile, error) {
	p := rm.Players[seat]
	if len(p.Hand) >= tiles.DealerHand {
		return tiles.Tile{}, ErrAlreadyDrew
	}

	var t tiles.Tile
	switch source {
	case SourceDeck:
		n := len(rm.Deck)
		if n == 0 {
			return tiles.Tile{}, ErrDeckEmpty
		}
		t = rm.Deck[n-1]
		rm.Deck = rm.Deck[:n-1]
	case SourceDiscard:
		prev := rm.Players[rm.prevSeat(seat)].ID
		pile := rm.Discards[prev]
		n := len(pile)
		if n == 0 {
			return tiles.Tile{}, ErrDiscardPileEmpty
		}
		t = pile[n-1]
		rm.Discards[prev] = pile[:n-1]
	default:
		return tiles.Tile{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	p.Hand = append(p.Hand, t)
	rm.UpdatedAt = r.now()
	return t, nil
}

// DiscardTile moves the tile at handIndex onto the acting seat's discard pile
// and passes the turn.
func (r *Registry) DiscardTile(code, playerID string, handIndex int) (tiles.Tile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, seat, err := r.actingSeat(code, playerID)
	if err != nil {
		return tiles.Tile{}, err
	}
	hand := rm.Players[seat].Hand
	if len(hand) != tiles.DealerHand {
		return tiles.Tile{}, ErrMustDrawBeforeDiscard
	}
	if handIndex < 0 || handIndex >= len(hand) {
		return tiles.Tile{}, fmt.Errorf("%w: %d", ErrInvalidHandIndex, handIndex)
	}

	t := r.discard(rm, seat, handIndex)
	r.publish(Event{Kind: EventTileDiscarded, RoomCode: rm.ID, State: rm.State, PlayerID: playerID, Tile: &t, NextTurn: rm.TurnIndex})
	r.scheduleBot(rm)
	return t, nil
}

// discard assumes the index was validated.
func (r *Registry) discard(rm *Room, seat, idx int) tiles.Tile {
	p := rm.Players[seat]
	t := p.Hand[idx]
	p.Hand = slices.Delete(p.Hand, idx, idx+1)
	rm.Discards[p.ID] = append(rm.Discards[p.ID], t)
	rm.TurnIndex = (rm.TurnIndex + 1) % len(rm.Players)
	rm.UpdatedAt = r.now()
	return t
}

// Get returns a deep copy of the room, hands included.
func (r *Registry) Get(code string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm.clone(), nil
}

// Public returns the masked view of a room.
func (r *Registry) Public(code string) (PublicRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return PublicRoom{}, ErrRoomNotFound
	}
	return rm.Public(), nil
}

// SeatView returns playerID's private view: its own hand plus public state.
func (r *Registry) SeatView(code, playerID string) (SeatView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.store.Get(NormalizeCode(code))
	if !ok {
		return SeatView{}, ErrRoomNotFound
	}
	seat := rm.seatOf(playerID)
	if seat < 0 {
		return SeatView{}, ErrNotInRoom
	}
	return rm.seatView(seat), nil
}

// List summarizes every room, oldest first.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.store.List()
	out := make([]Summary, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, rm.summary())
	}
	return out
}

// RoomOf returns the code of the room seating playerID.
func (r *Registry) RoomOf(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.seats[playerID]
	return code, ok
}

// CleanupLoop closes paused rooms that have been idle for longer than
// maxIdle. It returns when ctx is done.
func (r *Registry) CleanupLoop(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup(maxIdle)
		}
	}
}

func (r *Registry) cleanup(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	closed := 0
	for _, rm := range r.store.List() {
		if rm.State == StatePaused && now.Sub(rm.UpdatedAt) > maxIdle {
			r.log.Info("cleaning up paused room", zap.String("room", rm.ID), zap.Duration("idle", now.Sub(rm.UpdatedAt)))
			r.closeRoom(rm)
			closed++
		}
	}
	return closed
}

// Close stops every pending bot turn and ends all subscriptions. The registry
// must not be used afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, rm := range r.store.List() {
		r.cancelBot(rm)
	}
	r.bus.close()
}

func (r *Registry) publish(e Event) {
	if dropped := r.bus.publish(e); dropped > 0 {
		r.log.Warn("event dropped by slow subscribers",
			zap.String("room", e.RoomCode),
			zap.String("kind", string(e.Kind)),
			zap.Int("dropped", dropped),
		)
	}
}

func (r *Registry) newCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := r.store.Get(code); !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate room code: no free code after %d attempts", codeAttempts)
}

// randomCode draws CodeLength base-36 characters from crypto/rand, rejecting
// bytes that would bias the alphabet.
func randomCode() (string, error) {
	const limit = 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, 16)
	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
