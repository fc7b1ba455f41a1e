package onestroke

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"kasumi-go/models"
	"kasumi-go/utils"
)

const leaderboardTTL = 30 * time.Second

var memRows = struct {
	mu   sync.Mutex
	rows []models.OneStrokeResult
}{}

// ResetMemRows clears the in-memory result store. Test helper.
func ResetMemRows() {
	memRows.mu.Lock()
	defer memRows.mu.Unlock()
	memRows.rows = nil
}

func recordResult(userID, difficulty string, edgeCount int, reward int64, elapsedSeconds float64, completed bool) {
	row := models.OneStrokeResult{
		UserID:         userID,
		Difficulty:     difficulty,
		EdgeCount:      edgeCount,
		Reward:         reward,
		ElapsedSeconds: elapsedSeconds,
		Completed:      completed,
		Timestamp:      time.Now().Unix(),
	}

	if completed {
		utils.DropCacheKey(leaderboardKey(difficulty))
	}

	if utils.DB == nil {
		memRows.mu.Lock()
		defer memRows.mu.Unlock()
		memRows.rows = append(memRows.rows, row)
		return
	}

	_, err := utils.DB.Exec(context.Background(),
		"INSERT INTO onestroke_games (user_id, difficulty, edge_count, reward, elapsed_seconds, completed, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		row.UserID, row.Difficulty, row.EdgeCount, row.Reward, row.ElapsedSeconds, row.Completed, row.Timestamp,
	)
	if err != nil {
		log.Printf("failed to record onestroke result: %v", err)
	}
}

func leaderboardKey(difficulty string) string {
	return "onestroke:lb:" + difficulty
}

// Leaderboard returns up to limit best completed runs for the difficulty:
// one row per user, fastest time first, earlier run wins ties.
func Leaderboard(difficulty string, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	if utils.FetchJSON(leaderboardKey(difficulty), &entries) {
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return entries, nil
	}

	if utils.DB == nil {
		memRows.mu.Lock()
		best := make(map[string]models.LeaderboardEntry)
		for _, row := range memRows.rows {
			if !row.Completed || row.Difficulty != difficulty {
				continue
			}
			cur, ok := best[row.UserID]
			if !ok || row.ElapsedSeconds < cur.ElapsedSeconds ||
				(row.ElapsedSeconds == cur.ElapsedSeconds && row.Timestamp < cur.Timestamp) {
				best[row.UserID] = models.LeaderboardEntry{
					UserID:         row.UserID,
					ElapsedSeconds: row.ElapsedSeconds,
					Timestamp:      row.Timestamp,
				}
			}
		}
		memRows.mu.Unlock()

		for _, e := range best {
			entries = append(entries, e)
		}
	} else {
		rows, err := utils.DB.Query(context.Background(),
			`SELECT DISTINCT ON (user_id) user_id, elapsed_seconds, timestamp
			 FROM onestroke_games
			 WHERE completed AND difficulty = $1
			 ORDER BY user_id, elapsed_seconds ASC, timestamp ASC`,
			difficulty,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query leaderboard: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e models.LeaderboardEntry
			if err := rows.Scan(&e.UserID, &e.ElapsedSeconds, &e.Timestamp); err != nil {
				return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ElapsedSeconds != entries[j].ElapsedSeconds {
			return entries[i].ElapsedSeconds < entries[j].ElapsedSeconds
		}
		return entries[i].Timestamp < entries[j].Timestamp
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	utils.CacheJSON(leaderboardKey(difficulty), entries, leaderboardTTL)
	return entries, nil
}
