package blackjack

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"kasumi-go/models"
	"kasumi-go/utils"
)

var memRows = struct {
	mu   sync.Mutex
	rows []models.BlackjackResult
}{}

// ResetMemRows clears the in-memory result store. Test helper.
func ResetMemRows() {
	memRows.mu.Lock()
	defer memRows.mu.Unlock()
	memRows.rows = nil
}

func recordResult(userID string, bet int64, result string, winnings int64, isSplit bool) {
	row := models.BlackjackResult{
		UserID:    userID,
		BetAmount: bet,
		Result:    result,
		Winnings:  winnings,
		IsSplit:   isSplit,
		Timestamp: time.Now().Unix(),
	}

	if utils.DB == nil {
		memRows.mu.Lock()
		defer memRows.mu.Unlock()
		memRows.rows = append(memRows.rows, row)
		return
	}

	_, err := utils.DB.Exec(context.Background(),
		"INSERT INTO blackjack_games (user_id, bet_amount, result, winnings, is_split, timestamp) VALUES ($1, $2, $3, $4, $5, $6)",
		row.UserID, row.BetAmount, row.Result, row.Winnings, row.IsSplit, row.Timestamp,
	)
	if err != nil {
		log.Printf("failed to record blackjack result: %v", err)
	}
}

// localMidnight returns the unix timestamp of today's local midnight.
func localMidnight(now time.Time) int64 {
	y, m, d := now.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local).Unix()
}

// isFirstGameToday reports whether the user has no finished game since local
// midnight, which arms the first-game-of-day winnings doubling.
func isFirstGameToday(userID string) (bool, error) {
	midnight := localMidnight(time.Now())

	if utils.DB == nil {
		memRows.mu.Lock()
		defer memRows.mu.Unlock()
		for _, row := range memRows.rows {
			if row.UserID == userID && row.Timestamp >= midnight {
				return false, nil
			}
		}
		return true, nil
	}

	var count int
	err := utils.DB.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM blackjack_games WHERE user_id = $1 AND timestamp >= $2",
		userID, midnight,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to probe games today: %w", err)
	}
	return count == 0, nil
}

// UserStats summarizes a user's blackjack history.
type UserStats struct {
	Games       int
	Wins        int
	NetWinnings int64
}

func getUserStats(userID string) (*UserStats, error) {
	stats := &UserStats{}

	if utils.DB == nil {
		memRows.mu.Lock()
		defer memRows.mu.Unlock()
		for _, row := range memRows.rows {
			if row.UserID != userID {
				continue
			}
			stats.Games++
			if row.Winnings > 0 {
				stats.Wins++
			}
			stats.NetWinnings += row.Winnings
		}
		return stats, nil
	}

	err := utils.DB.QueryRow(context.Background(),
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE winnings > 0), COALESCE(SUM(winnings), 0)
		 FROM blackjack_games WHERE user_id = $1`,
		userID,
	).Scan(&stats.Games, &stats.Wins, &stats.NetWinnings)
	if err != nil {
		return nil, fmt.Errorf("failed to load blackjack stats: %w", err)
	}
	return stats, nil
}
