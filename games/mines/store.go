package mines

import (
	"context"
	"log"
	"sync"
	"time"

	"kasumi-go/models"
	"kasumi-go/utils"
)

var memRows = struct {
	mu   sync.Mutex
	rows []models.MinesResult
}{}

// ResetMemRows clears the in-memory result store. Test helper.
func ResetMemRows() {
	memRows.mu.Lock()
	defer memRows.mu.Unlock()
	memRows.rows = nil
}

func recordResult(userID string, bet int64, mineCount, revealedCount int, result string, winnings int64) {
	row := models.MinesResult{
		UserID:        userID,
		BetAmount:     bet,
		Mines:         mineCount,
		RevealedCount: revealedCount,
		Result:        result,
		Winnings:      winnings,
		Timestamp:     time.Now().Unix(),
	}

	if utils.DB == nil {
		memRows.mu.Lock()
		defer memRows.mu.Unlock()
		memRows.rows = append(memRows.rows, row)
		return
	}

	_, err := utils.DB.Exec(context.Background(),
		"INSERT INTO mines_games (user_id, bet_amount, mines, revealed_count, result, winnings, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		row.UserID, row.BetAmount, row.Mines, row.RevealedCount, row.Result, row.Winnings, row.Timestamp,
	)
	if err != nil {
		log.Printf("failed to record mines result: %v", err)
	}
}
