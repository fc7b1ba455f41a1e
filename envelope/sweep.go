package envelope

import (
	"context"
	"fmt"
	"log"
	"time"

	"kasumi-go/utils"
)

var sweepDone chan bool

// StartExpirySweeper launches the periodic sweep that expires overdue
// envelopes and refunds their creators.
func StartExpirySweeper() {
	sweepDone = make(chan bool)
	ticker := time.NewTicker(utils.EnvelopeSweepEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := SweepExpired(time.Now()); err != nil {
					log.Printf("[envelope] expiry sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("[envelope] expired %d envelopes", n)
				}
			case <-sweepDone:
				return
			}
		}
	}()
}

// StopExpirySweeper stops the sweep loop.
func StopExpirySweeper() {
	if sweepDone != nil {
		sweepDone <- true
	}
}

// SweepExpired expires every overdue envelope, refunding the unclaimed
// remainder to its creator. Returns the number expired.
func SweepExpired(now time.Time) (int, error) {
	cutoff := now.Unix()

	if utils.DB == nil {
		memStore.mu.Lock()
		var overdue []*Envelope
		for _, e := range memStore.envelopes {
			if !e.IsExpired && cutoff >= e.ExpiresAt {
				overdue = append(overdue, e)
			}
		}
		for _, e := range overdue {
			expireLocked(e)
		}
		memStore.mu.Unlock()
		return len(overdue), nil
	}

	rows, err := utils.DB.Query(context.Background(),
		"SELECT id FROM red_envelopes WHERE NOT is_expired AND expires_at <= $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to find overdue envelopes: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	expired := 0
	for _, id := range ids {
		if err := expireOne(id); err != nil {
			log.Printf("[envelope] expiry of %d failed: %v", id, err)
			continue
		}
		expired++
	}
	return expired, nil
}

// expireOne marks one envelope expired and refunds its remainder in a
// single transaction.
func expireOne(id int64) error {
	ctx := context.Background()
	tx, err := utils.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var creatorID string
	var remaining int64
	err = tx.QueryRow(ctx,
		"SELECT creator_id, remaining_amount FROM red_envelopes WHERE id = $1 AND NOT is_expired FOR UPDATE",
		id,
	).Scan(&creatorID, &remaining)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE red_envelopes SET is_expired = TRUE, remaining_amount = 0, remaining_count = 0, pending_amounts = '[]' WHERE id = $1",
		id,
	); err != nil {
		return err
	}

	if remaining > 0 {
		if _, err := tx.Exec(ctx,
			"UPDATE users SET balance = balance + $2 WHERE user_id = $1", creatorID, remaining,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO transactions (user_id, category, amount, time, description) VALUES ($1, $2, $3, $4, $5)",
			creatorID, utils.CategoryIncome, remaining, time.Now().Unix(), fmt.Sprintf("red_envelope_refund_%d", id),
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	utils.InvalidateUserCache(creatorID)
	return nil
}
