package models

// Result kinds shared by the game record rows.
const (
	ResultWin       = "win"
	ResultBlackjack = "blackjack"
	ResultPush      = "push"
	ResultBust      = "bust"
	ResultSurrender = "surrender"
	ResultLose      = "lose"
	ResultCashout   = "cashout"
	ResultTimeout   = "timeout"
)

// BlackjackResult is one finished blackjack game.
type BlackjackResult struct {
	UserID    string
	BetAmount int64
	Result    string
	Winnings  int64
	IsSplit   bool
	Timestamp int64
}

// MinesResult is one finished mines game. RevealedCount keeps the reveals
// made before a mine hit as well.
type MinesResult struct {
	UserID        string
	BetAmount     int64
	Mines         int
	RevealedCount int
	Result        string
	Winnings      int64
	Timestamp     int64
}

// OneStrokeResult is one finished one-stroke run.
type OneStrokeResult struct {
	UserID         string
	Difficulty     string
	EdgeCount      int
	Reward         int64
	ElapsedSeconds float64
	Completed      bool
	Timestamp      int64
}

// LeaderboardEntry is one user's best run for a difficulty.
type LeaderboardEntry struct {
	UserID         string
	ElapsedSeconds float64
	Timestamp      int64
}
