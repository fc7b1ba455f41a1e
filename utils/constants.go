package utils

import "time"

// Transaction categories
const (
	CategoryIncome   = "income"
	CategoryExpense  = "expense"
	CategoryTransfer = "transfer"
	CategorySet      = "set"
)

// Economy
const (
	NicknameChangeCost = 30 // shards; the first set is free
	NicknameMaxLength  = 20
)

// Daily check-in bonus: clamped Gaussian
const (
	DailyBonusMean   = 5.5
	DailyBonusStdDev = 2.0
	DailyBonusMin    = 1
	DailyBonusMax    = 10
)

// Blackjack
const (
	DeckCount        = 6    // standard shoe size
	ShuffleThreshold = 0.25 // reshuffle when 25% of the shoe remains
	DealerStandValue = 17
	BlackjackPayout  = 1.5
)

// Mines
const (
	MinesGridSize   = 5
	MinesCellCount  = MinesGridSize * MinesGridSize
	MinesDefault    = 5
	MinesMin        = 1
	MinesMax        = 24
	MinesHouseEdge  = 0.03
)

// Turn engine timeouts
const (
	BetPromptTimeout  = 60 * time.Second
	SplitOfferTimeout = 60 * time.Second
	PlayerTurnTimeout = 180 * time.Second
)

// Passive correlator
const (
	PassiveMaxAge   = 5 * time.Minute
	PassiveMaxReuse = 5
	PassiveSweep    = time.Minute
)

// Red envelope
const (
	EnvelopeTTL        = 24 * time.Hour
	EnvelopeSweepEvery = 5 * time.Minute
)

// Mailbox
const (
	MailDefaultExpireDays = 7
	ScheduledMailPoll     = 5 * time.Second
	MailCleanupHour       = 3 // daily cleanup at 03:00 local
)
