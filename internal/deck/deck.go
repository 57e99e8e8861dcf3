// internal/deck/deck.go
package deck

import (
	"fmt"
	"math/rand"
	"time"
)

// DefaultUniverseSize is the number of distinct card images shipped with the game.
const DefaultUniverseSize = 108

// NewUniverse builds the full ordered card universe: card1.png through cardN.png.
// Cards are opaque image identifiers; the deck never contains duplicates.
func NewUniverse(size int) []string {
	if size <= 0 {
		size = DefaultUniverseSize
	}
	cards := make([]string, size)
	for i := range cards {
		cards[i] = fmt.Sprintf("card%d.png", i+1)
	}
	return cards
}

// Shuffle returns a uniformly random permutation of cards. The input slice is
// not modified. A fresh time-seeded source is used on every call so no two
// sessions replay the same order.
func Shuffle(cards []string) []string {
	shuffled := make([]string, len(cards))
	copy(shuffled, cards)
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// Deal splits off the first n cards and returns them with the remaining deck.
// If the deck holds fewer than n cards, everything available is dealt; the
// caller is responsible for reshuffling the discard pile in beforehand when a
// full deal is required.
func Deal(cards []string, n int) (dealt, remaining []string) {
	if n < 0 {
		n = 0
	}
	if n > len(cards) {
		n = len(cards)
	}
	return cards[:n], cards[n:]
}
