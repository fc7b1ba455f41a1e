package utils

import (
	"math/rand"
	"sync"
	"time"
)

// Card represents a playing card
type Card struct {
	Rank string
	Suit string
}

// CardRanks defines the point values for card ranks
var CardRanks = map[string]int{
	"2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8, "9": 9, "10": 10,
	"J": 10, "Q": 10, "K": 10, "A": 11,
}

// CardSuits defines the available card suits
var CardSuits = []string{"♠", "♥", "♦", "♣"}

// NewCard creates a new card
func NewCard(rank, suit string) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the string representation of a card
func (c Card) String() string {
	return c.Suit + c.Rank
}

// PointValue returns the card's blackjack point value (Ace counts 11 here;
// hand valuation demotes Aces as needed)
func (c Card) PointValue() int {
	if value, exists := CardRanks[c.Rank]; exists {
		return value
	}
	return 0
}

// IsAce checks if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == "A"
}

// Deck represents a multi-deck shoe
type Deck struct {
	Cards      []Card
	NumDecks   int
	DealtCards int
	TotalCards int
	rng        *rand.Rand
}

// NewDeck creates a shuffled shoe of numDecks standard decks
func NewDeck(numDecks int) *Deck {
	return NewDeckFromSource(numDecks, rand.NewSource(time.Now().UnixNano()))
}

// NewDeckFromSource creates a shoe with a caller-supplied random source
func NewDeckFromSource(numDecks int, src rand.Source) *Deck {
	deck := &Deck{
		Cards:      make([]Card, 0, numDecks*52),
		NumDecks:   numDecks,
		DealtCards: 0,
		TotalCards: numDecks * 52,
		rng:        rand.New(src),
	}

	ranks := []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
	for d := 0; d < numDecks; d++ {
		for _, suit := range CardSuits {
			for _, rank := range ranks {
				deck.Cards = append(deck.Cards, NewCard(rank, suit))
			}
		}
	}

	deck.Shuffle()
	return deck
}

// NewStackedDeck creates a deck that deals the given cards in order. Used by
// tests that need a known sequence.
func NewStackedDeck(cards []Card) *Deck {
	return &Deck{
		Cards:      cards,
		NumDecks:   1,
		DealtCards: 0,
		TotalCards: len(cards),
		rng:        rand.New(rand.NewSource(1)),
	}
}

// Shuffle shuffles the deck and resets the dealt counter
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.Cards), func(i, j int) {
		d.Cards[i], d.Cards[j] = d.Cards[j], d.Cards[i]
	})
	d.DealtCards = 0
}

// Deal deals one card from the deck
func (d *Deck) Deal() Card {
	if d.DealtCards >= len(d.Cards) {
		d.Shuffle()
	}
	card := d.Cards[d.DealtCards]
	d.DealtCards++
	return card
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.Cards) - d.DealtCards
}

// ShouldShuffle reports whether the shoe has dropped below the reshuffle
// threshold (25% of capacity)
func (d *Deck) ShouldShuffle() bool {
	remaining := float64(d.CardsRemaining())
	total := float64(d.TotalCards)
	return (remaining / total) <= ShuffleThreshold
}

// Hand represents a blackjack hand
type Hand struct {
	Cards []Card
}

// NewHand creates a new empty hand
func NewHand() *Hand {
	return &Hand{Cards: make([]Card, 0, 8)}
}

// AddCard adds a card to the hand
func (h *Hand) AddCard(card Card) {
	h.Cards = append(h.Cards, card)
}

// Value calculates the hand value with Ace handling: Aces count 11 and are
// demoted to 1 one at a time while the total exceeds 21
func (h *Hand) Value() int {
	total := 0
	aces := 0

	for _, card := range h.Cards {
		if card.IsAce() {
			aces++
		}
		total += card.PointValue()
	}

	for aces > 0 && total > 21 {
		total -= 10
		aces--
	}
	return total
}

// String returns string representation of the hand
func (h *Hand) String() string {
	result := ""
	for i, card := range h.Cards {
		if i > 0 {
			result += " "
		}
		result += card.String()
	}
	return result
}

// IsBlackjack checks if the hand is a natural (21 with 2 cards)
func (h *Hand) IsBlackjack() bool {
	return len(h.Cards) == 2 && h.Value() == 21
}

// IsBusted checks if the hand is over 21
func (h *Hand) IsBusted() bool {
	return h.Value() > 21
}

// CanSplit checks if the hand can be split: two cards of equal point value
func (h *Hand) CanSplit() bool {
	return len(h.Cards) == 2 && h.Cards[0].PointValue() == h.Cards[1].PointValue()
}

// Count returns the number of cards in the hand
func (h *Hand) Count() int {
	return len(h.Cards)
}

// ShoeManager holds one shoe per channel. The reshuffle decision and the
// opening deal are a single critical section so two users starting at once
// cannot both deal from the pre-reshuffle shoe.
type ShoeManager struct {
	mu    sync.Mutex
	shoes map[string]*Deck
}

// NewShoeManager creates an empty shoe manager
func NewShoeManager() *ShoeManager {
	return &ShoeManager{shoes: make(map[string]*Deck)}
}

// SetShoe installs a specific deck for a channel. Test helper.
func (sm *ShoeManager) SetShoe(channelID string, deck *Deck) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shoes[channelID] = deck
}

// DealOpening reshuffles the channel shoe if needed and deals n cards.
// Reports whether a reshuffle happened so the game can announce it.
func (sm *ShoeManager) DealOpening(channelID string, n int) ([]Card, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	deck, ok := sm.shoes[channelID]
	if !ok {
		deck = NewDeck(DeckCount)
		sm.shoes[channelID] = deck
	}

	reshuffled := false
	if deck.ShouldShuffle() {
		deck.Shuffle()
		reshuffled = true
	}

	cards := make([]Card, n)
	for i := range cards {
		cards[i] = deck.Deal()
	}
	return cards, reshuffled
}

// Deal deals one card from the channel's shoe
func (sm *ShoeManager) Deal(channelID string) Card {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	deck, ok := sm.shoes[channelID]
	if !ok {
		deck = NewDeck(DeckCount)
		sm.shoes[channelID] = deck
	}
	return deck.Deal()
}
