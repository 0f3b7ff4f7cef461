package engine

import (
	"math/rand"
	"slices"
)

// RandomLayout returns a uniformly random ordering of LayoutSize distinct
// cards from hand.
func RandomLayout(rng *rand.Rand, hand []Card) Layout {
	return CompleteDraft(rng, Draft{}, hand)
}

// CompleteDraft keeps every slot the player already filled and fills the rest
// with a random ordering of the unused hand cards.
func CompleteDraft(rng *rand.Rand, d Draft, hand []Card) Layout {
	unused := make([]Card, 0, len(hand))
	for _, c := range hand {
		if !slices.Contains(d[:], c) {
			unused = append(unused, c)
		}
	}
	rng.Shuffle(len(unused), func(i, j int) { unused[i], unused[j] = unused[j], unused[i] })

	var l Layout
	for i, c := range d {
		if c == CardNone && len(unused) > 0 {
			c, unused = unused[0], unused[1:]
		}
		l[i] = c
	}
	return l
}

func CardsFromStrings(in []string) []Card {
	out := make([]Card, len(in))
	for i, s := range in {
		out[i] = Card(s)
	}
	return out
}

func CardsFromNullable(in []*string) []Card {
	out := make([]Card, len(in))
	for i, s := range in {
		if s != nil {
			out[i] = Card(*s)
		}
	}
	return out
}
