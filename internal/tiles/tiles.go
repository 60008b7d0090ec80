package tiles

import "fmt"

// Color is a tile color. Fake jokers have no color.
type Color string

const (
	Red    Color = "red"
	Black  Color = "black"
	Blue   Color = "blue"
	Yellow Color = "yellow"
)

// Colors lists the four tile colors in deck-construction order.
var Colors = []Color{Red, Black, Blue, Yellow}

// Kind distinguishes numbered tiles from fake jokers.
type Kind string

const (
	Normal    Kind = "normal"
	FakeJoker Kind = "fake_joker"
)

const (
	MinValue = 1
	MaxValue = 13
)

// Tile is one physical tile. Tiles are immutable once created; ID is identity.
type Tile struct {
	ID    int   `json:"id"`
	Color Color `json:"color,omitempty"`
	Value int   `json:"value"` // 0 for fake jokers
	Type  Kind  `json:"type"`
}

// IsJoker reports whether t is a fake joker.
func (t Tile) IsJoker() bool {
	return t.Type == FakeJoker
}

func (t Tile) String() string {
	if t.IsJoker() {
		return fmt.Sprintf("joker#%d", t.ID)
	}
	return fmt.Sprintf("%s-%d#%d", t.Color, t.Value, t.ID)
}

// Okey is the round's wildcard. It names a color and value, not a physical tile.
type Okey struct {
	Color Color `json:"color"`
	Value int   `json:"value"`
}

// WildcardFor derives the wildcard from an indicator: same color, value+1,
// wrapping 13 to 1.
func WildcardFor(indicator Tile) Okey {
	v := indicator.Value + 1
	if v > MaxValue {
		v = MinValue
	}
	return Okey{Color: indicator.Color, Value: v}
}
