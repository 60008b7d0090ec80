package tiles

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	// DeckSize is the number of tiles in a full deck.
	DeckSize = 106
	// MaxSeats is the largest table the dealer supports.
	MaxSeats = 4
	// DealerHand and HandSize are the dealt hand sizes: seat 0 starts one
	// tile ahead because it discards before anyone draws.
	DealerHand = 22
	HandSize   = 21
)

var (
	ErrNoIndicator = errors.New("deck has no tile eligible as indicator")
	ErrShortDeck   = errors.New("not enough tiles to deal")
)

// NewDeck builds the unshuffled 106-tile deck: two copies of every
// color/value pair followed by two fake jokers. IDs run 1..106.
func NewDeck() []Tile {
	deck := make([]Tile, 0, DeckSize)
	id := 1
	for set := 0; set < 2; set++ {
		for _, c := range Colors {
			for v := MinValue; v <= MaxValue; v++ {
				deck = append(deck, Tile{ID: id, Color: c, Value: v, Type: Normal})
				id++
			}
		}
	}
	for i := 0; i < 2; i++ {
		deck = append(deck, Tile{ID: id, Type: FakeJoker})
		id++
	}
	return deck
}

// Shuffle permutes deck in place with Fisher-Yates and returns it.
func Shuffle(deck []Tile, rng *rand.Rand) []Tile {
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// SelectIndicator picks a uniformly random non-joker tile from deck and
// derives the wildcard from it. The deck is left untouched; the indicator
// stays in play wherever it is dealt.
func SelectIndicator(deck []Tile, rng *rand.Rand) (Tile, Okey, error) {
	eligible := false
	for _, t := range deck {
		if !t.IsJoker() {
			eligible = true
			break
		}
	}
	if !eligible {
		return Tile{}, Okey{}, ErrNoIndicator
	}
	for {
		t := deck[rng.IntN(len(deck))]
		if !t.IsJoker() {
			return t, WildcardFor(t), nil
		}
	}
}

// Deal hands out tiles from the end of deck: 22 to seat 0 and 21 to every
// other seat. The remaining prefix is the draw pile. Hands are fresh slices;
// rest aliases deck.
func Deal(deck []Tile, seats int) (hands [][]Tile, rest []Tile, err error) {
	if seats < 1 || seats > MaxSeats {
		return nil, nil, fmt.Errorf("deal to %d seats: seat count must be 1..%d", seats, MaxSeats)
	}
	need := DealerHand + HandSize*(seats-1)
	if len(deck) < need {
		return nil, nil, fmt.Errorf("deal %d tiles from %d: %w", need, len(deck), ErrShortDeck)
	}

	hands = make([][]Tile, seats)
	rest = deck
	for seat := 0; seat < seats; seat++ {
		n := HandSize
		if seat == 0 {
			n = DealerHand
		}
		hand := make([]Tile, 0, n+1)
		for i := 0; i < n; i++ {
			hand = append(hand, rest[len(rest)-1])
			rest = rest[:len(rest)-1]
		}
		hands[seat] = hand
	}
	return hands, rest, nil
}
