package utils

import (
	"math/rand"
	"testing"
)

func TestDeckComposition(t *testing.T) {
	deck := NewDeckFromSource(6, rand.NewSource(1))
	if deck.TotalCards != 312 || len(deck.Cards) != 312 {
		t.Fatalf("six-deck shoe has %d cards, want 312", len(deck.Cards))
	}
	if deck.CardsRemaining() != 312 {
		t.Errorf("CardsRemaining = %d, want 312", deck.CardsRemaining())
	}
	deck.Deal()
	if deck.CardsRemaining() != 311 {
		t.Errorf("CardsRemaining after deal = %d, want 311", deck.CardsRemaining())
	}
}

func TestShouldShuffleAtQuarter(t *testing.T) {
	deck := NewDeckFromSource(6, rand.NewSource(1))
	for deck.CardsRemaining() > 78 {
		deck.Deal()
	}
	if !deck.ShouldShuffle() {
		t.Error("shoe at 25% should request a shuffle")
	}

	deck.Shuffle()
	if deck.ShouldShuffle() {
		t.Error("freshly shuffled shoe should not request a shuffle")
	}
}

func TestHandValueAceDemotion(t *testing.T) {
	cases := []struct {
		ranks []string
		want  int
	}{
		{[]string{"A", "K"}, 21},
		{[]string{"A", "A"}, 12},
		{[]string{"A", "9", "5"}, 15},
		{[]string{"A", "A", "9"}, 21},
		{[]string{"K", "Q", "5"}, 25},
	}
	for _, tc := range cases {
		h := NewHand()
		for _, r := range tc.ranks {
			h.AddCard(NewCard(r, "♠"))
		}
		if got := h.Value(); got != tc.want {
			t.Errorf("Value(%v) = %d, want %d", tc.ranks, got, tc.want)
		}
	}
}

func TestIsBlackjack(t *testing.T) {
	natural := NewHand()
	natural.AddCard(NewCard("A", "♠"))
	natural.AddCard(NewCard("J", "♥"))
	if !natural.IsBlackjack() {
		t.Error("A+J not recognized as a natural")
	}

	drawn := NewHand()
	for _, r := range []string{"7", "7", "7"} {
		drawn.AddCard(NewCard(r, "♦"))
	}
	if drawn.IsBlackjack() {
		t.Error("three-card 21 recognized as a natural")
	}
}

func TestCanSplitOnPointValues(t *testing.T) {
	h := NewHand()
	h.AddCard(NewCard("K", "♠"))
	h.AddCard(NewCard("10", "♥"))
	if !h.CanSplit() {
		t.Error("K+10 should split: equal point values")
	}

	h2 := NewHand()
	h2.AddCard(NewCard("A", "♠"))
	h2.AddCard(NewCard("K", "♥"))
	if h2.CanSplit() {
		t.Error("A+K should not split")
	}
}

func TestDealOpeningReshuffles(t *testing.T) {
	sm := NewShoeManager()
	deck := NewDeckFromSource(1, rand.NewSource(7))
	for deck.CardsRemaining() > 10 {
		deck.Deal()
	}
	sm.SetShoe("ch", deck)

	cards, reshuffled := sm.DealOpening("ch", 4)
	if !reshuffled {
		t.Error("depleted shoe was not reshuffled before the opening deal")
	}
	if len(cards) != 4 {
		t.Fatalf("dealt %d cards, want 4", len(cards))
	}
	if deck.CardsRemaining() != 48 {
		t.Errorf("remaining after reshuffle+deal = %d, want 48", deck.CardsRemaining())
	}
}

func TestStackedDeckDealsInOrder(t *testing.T) {
	cards := []Card{NewCard("A", "♠"), NewCard("K", "♥"), NewCard("2", "♦")}
	deck := NewStackedDeck(cards)
	for i, want := range cards {
		if got := deck.Deal(); got != want {
			t.Errorf("deal %d = %v, want %v", i, got, want)
		}
	}
}
