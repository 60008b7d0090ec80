package room

import "errors"

// Expected, user-facing failures. Every operation returns one of these (or
// wraps one) before mutating anything.
var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomFull              = errors.New("room full")
	ErrGameAlreadyStarted    = errors.New("game already started")
	ErrNotEnoughPlayers      = errors.New("not enough players (min 2)")
	ErrGameNotActive         = errors.New("game not active")
	ErrNotYourTurn           = errors.New("not your turn")
	ErrAlreadyDrew           = errors.New("already drew, must discard")
	ErrMustDrawBeforeDiscard = errors.New("must draw before discarding")
	ErrDeckEmpty             = errors.New("deck empty")
	ErrDiscardPileEmpty      = errors.New("discard pile empty")
	ErrInvalidSource         = errors.New("invalid source")
	ErrInvalidHandIndex      = errors.New("invalid hand index")
	ErrAlreadyInRoom         = errors.New("player already in a room")
	ErrNotHost               = errors.New("only the host can do that")
	ErrNotInRoom             = errors.New("player not in room")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, "ROOM_NOT_FOUND"},
	{ErrRoomFull, "ROOM_FULL"},
	{ErrGameAlreadyStarted, "GAME_ALREADY_STARTED"},
	{ErrNotEnoughPlayers, "NOT_ENOUGH_PLAYERS"},
	{ErrGameNotActive, "GAME_NOT_ACTIVE"},
	{ErrNotYourTurn, "NOT_YOUR_TURN"},
	{ErrAlreadyDrew, "ALREADY_DREW"},
	{ErrMustDrawBeforeDiscard, "MUST_DRAW_BEFORE_DISCARD"},
	{ErrDeckEmpty, "DECK_EMPTY"},
	{ErrDiscardPileEmpty, "DISCARD_PILE_EMPTY"},
	{ErrInvalidSource, "INVALID_SOURCE"},
	{ErrInvalidHandIndex, "INVALID_HAND_INDEX"},
	{ErrAlreadyInRoom, "ALREADY_IN_ROOM"},
	{ErrNotHost, "NOT_HOST"},
	{ErrNotInRoom, "NOT_IN_ROOM"},
}

// Code maps err to a stable client-facing code. Unknown errors map to
// "INTERNAL".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
