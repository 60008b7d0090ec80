// Package bot holds the discard policies used by bot-controlled seats.
package bot

import (
	"errors"
	"math/rand/v2"

	"okey/internal/tiles"
)

var ErrEmptyHand = errors.New("bot hand is empty")

// Strategy picks which tile a bot discards. It returns an index into hand.
// Implementations are called with the room registry locked and must not
// block.
type Strategy interface {
	Name() string
	ChooseDiscard(hand []tiles.Tile, rng *rand.Rand) (int, error)
}

// Random discards a uniformly random tile.
type Random struct{}

func (Random) Name() string { return "random" }

func (Random) ChooseDiscard(hand []tiles.Tile, rng *rand.Rand) (int, error) {
	if len(hand) == 0 {
		return 0, ErrEmptyHand
	}
	return rng.IntN(len(hand)), nil
}
