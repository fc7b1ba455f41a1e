package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"kasumi-go/utils"
)

// Envelope is one red envelope. PendingAmounts is the pre-generated claim
// vector; its length always equals RemainingCount.
type Envelope struct {
	ID              int64
	CreatorID       string
	ChannelID       string
	ChannelIndex    int
	Title           string
	TotalAmount     int64
	RemainingAmount int64
	TotalCount      int
	RemainingCount  int
	PendingAmounts  []int64
	CreatedAt       int64
	ExpiresAt       int64
	IsExpired       bool
}

// Claim is one user's share of an envelope.
type Claim struct {
	UserID    string
	Amount    int64
	ClaimedAt int64
}

// ClaimStatus enumerates claim outcomes.
type ClaimStatus string

const (
	ClaimNoActive ClaimStatus = "no_active"
	ClaimNotFound ClaimStatus = "not_found"
	ClaimExpired  ClaimStatus = "expired"
	ClaimEmpty    ClaimStatus = "empty"
	ClaimAlready  ClaimStatus = "already_claimed"
	ClaimSuccess  ClaimStatus = "success"
	ClaimError    ClaimStatus = "error"
)

// CompletionInfo describes the drain of an envelope for the lucky-king
// announcement. Set only on the claim that emptied it.
type CompletionInfo struct {
	CreatorID    string
	Duration     time.Duration
	MaxClaimerID string
	MaxAmount    int64
}

// ClaimResult is the unified claim return: status, the amount won on
// success, and completion info when this claim drained the envelope.
type ClaimResult struct {
	Status     ClaimStatus
	Amount     int64
	Completion *CompletionInfo
}

// In-memory store used when no database is configured. One mutex serializes
// claims, matching the row-lock discipline of the SQL path.
var memStore = struct {
	mu        sync.Mutex
	envelopes map[int64]*Envelope
	claims    map[int64][]Claim
	nextID    int64
}{envelopes: make(map[int64]*Envelope), claims: make(map[int64][]Claim), nextID: 1}

// ResetMemStore clears the in-memory store. Test helper.
func ResetMemStore() {
	memStore.mu.Lock()
	defer memStore.mu.Unlock()
	memStore.envelopes = make(map[int64]*Envelope)
	memStore.claims = make(map[int64][]Claim)
	memStore.nextID = 1
}

// Create debits the creator and stores a new envelope with its pre-split
// claim vector.
func Create(creatorID, channelID, title string, amount int64, count int) (*Envelope, error) {
	if count < 1 || amount < int64(count) {
		return nil, fmt.Errorf("invalid amount: need amount >= count >= 1")
	}
	user, err := utils.GetUser(creatorID)
	if err != nil {
		return nil, err
	}
	if user.Balance < amount {
		return nil, fmt.Errorf("insufficient balance: need %d, have %d", amount, user.Balance)
	}

	now := time.Now()
	env := &Envelope{
		CreatorID:       creatorID,
		ChannelID:       channelID,
		Title:           title,
		TotalAmount:     amount,
		RemainingAmount: amount,
		TotalCount:      count,
		RemainingCount:  count,
		PendingAmounts:  SplitAmounts(amount, count, rand.New(rand.NewSource(now.UnixNano()))),
		CreatedAt:       now.Unix(),
		ExpiresAt:       now.Add(utils.EnvelopeTTL).Unix(),
	}

	// Debit first: an envelope must never be claimable before its funding
	// has been collected.
	if err := utils.Cost(creatorID, amount, "red_envelope_create"); err != nil {
		return nil, err
	}

	if utils.DB == nil {
		memStore.mu.Lock()
		env.ID = memStore.nextID
		memStore.nextID++
		maxIndex := 0
		for _, e := range memStore.envelopes {
			if e.ChannelID == channelID && e.ChannelIndex > maxIndex {
				maxIndex = e.ChannelIndex
			}
		}
		env.ChannelIndex = maxIndex + 1
		memStore.envelopes[env.ID] = env
		memStore.mu.Unlock()
	} else {
		pending, _ := json.Marshal(env.PendingAmounts)
		err := utils.DB.QueryRow(context.Background(),
			`INSERT INTO red_envelopes
			 (creator_id, channel_id, channel_index, title, total_amount, remaining_amount,
			  total_count, remaining_count, pending_amounts, created_at, expires_at, is_expired)
			 VALUES ($1, $2,
			   (SELECT COALESCE(MAX(channel_index), 0) + 1 FROM red_envelopes WHERE channel_id = $2),
			   $3, $4, $4, $5, $5, $6, $7, $8, FALSE)
			 RETURNING id, channel_index`,
			creatorID, channelID, title, amount, count, string(pending), env.CreatedAt, env.ExpiresAt,
		).Scan(&env.ID, &env.ChannelIndex)
		if err != nil {
			if aerr := utils.Add(creatorID, amount, "red_envelope_create_refund"); aerr != nil {
				log.Printf("[envelope] create refund of %d to %s failed: %v", amount, creatorID, aerr)
			}
			return nil, fmt.Errorf("failed to store envelope: %w", err)
		}
	}
	return env, nil
}

// ClaimFrom claims a share. channelIndex 0 resolves to the most recently
// created active envelope in the channel. The pending pop, the counter
// updates, the claim row, and the credit are one atomic step.
func ClaimFrom(channelID, userID string, channelIndex int) ClaimResult {
	if utils.DB == nil {
		return memClaim(channelID, userID, channelIndex)
	}
	return dbClaim(channelID, userID, channelIndex)
}

func memClaim(channelID, userID string, channelIndex int) ClaimResult {
	memStore.mu.Lock()
	defer memStore.mu.Unlock()

	var env *Envelope
	if channelIndex > 0 {
		for _, e := range memStore.envelopes {
			if e.ChannelID == channelID && e.ChannelIndex == channelIndex {
				env = e
				break
			}
		}
		if env == nil {
			return ClaimResult{Status: ClaimNotFound}
		}
	} else {
		for _, e := range memStore.envelopes {
			if e.ChannelID != channelID || e.IsExpired {
				continue
			}
			if env == nil || e.CreatedAt > env.CreatedAt {
				env = e
			}
		}
		if env == nil {
			return ClaimResult{Status: ClaimNoActive}
		}
	}

	now := time.Now().Unix()
	if env.IsExpired || now >= env.ExpiresAt {
		expireLocked(env)
		return ClaimResult{Status: ClaimExpired}
	}
	for _, c := range memStore.claims[env.ID] {
		if c.UserID == userID {
			return ClaimResult{Status: ClaimAlready}
		}
	}
	if env.RemainingCount == 0 || len(env.PendingAmounts) == 0 {
		return ClaimResult{Status: ClaimEmpty}
	}

	amount := env.PendingAmounts[0]
	env.PendingAmounts = env.PendingAmounts[1:]
	env.RemainingAmount -= amount
	env.RemainingCount--
	memStore.claims[env.ID] = append(memStore.claims[env.ID], Claim{UserID: userID, Amount: amount, ClaimedAt: now})

	if err := utils.Add(userID, amount, fmt.Sprintf("red_envelope_claim_%d", env.ID)); err != nil {
		return ClaimResult{Status: ClaimError}
	}

	result := ClaimResult{Status: ClaimSuccess, Amount: amount}
	if env.RemainingCount == 0 {
		result.Completion = completionLocked(env, now)
	}
	return result
}

// completionLocked builds the lucky-king info; caller holds the store lock.
func completionLocked(env *Envelope, now int64) *CompletionInfo {
	info := &CompletionInfo{
		CreatorID: env.CreatorID,
		Duration:  time.Duration(now-env.CreatedAt) * time.Second,
	}
	for _, c := range memStore.claims[env.ID] {
		if c.Amount > info.MaxAmount {
			info.MaxAmount = c.Amount
			info.MaxClaimerID = c.UserID
		}
	}
	return info
}

// expireLocked marks an envelope expired and refunds the remainder; caller
// holds the store lock.
func expireLocked(env *Envelope) {
	if env.IsExpired {
		return
	}
	env.IsExpired = true
	remaining := env.RemainingAmount
	env.RemainingAmount = 0
	env.RemainingCount = 0
	env.PendingAmounts = nil
	if remaining > 0 {
		if err := utils.Add(env.CreatorID, remaining, fmt.Sprintf("red_envelope_refund_%d", env.ID)); err != nil {
			log.Printf("[envelope] refund of %d to %s failed: %v", remaining, env.CreatorID, err)
		}
	}
}

func dbClaim(channelID, userID string, channelIndex int) ClaimResult {
	ctx := context.Background()
	tx, err := utils.DB.Begin(ctx)
	if err != nil {
		return ClaimResult{Status: ClaimError}
	}
	defer tx.Rollback(ctx)

	env := &Envelope{}
	var pending string
	baseSelect := `SELECT id, creator_id, channel_id, channel_index, title, total_amount,
		remaining_amount, total_count, remaining_count, pending_amounts, created_at, expires_at, is_expired
		FROM red_envelopes WHERE channel_id = $1`

	var row pgx.Row
	if channelIndex > 0 {
		row = tx.QueryRow(ctx, baseSelect+" AND channel_index = $2 FOR UPDATE", channelID, channelIndex)
	} else {
		row = tx.QueryRow(ctx, baseSelect+" AND NOT is_expired ORDER BY created_at DESC LIMIT 1 FOR UPDATE", channelID)
	}
	err = row.Scan(&env.ID, &env.CreatorID, &env.ChannelID, &env.ChannelIndex, &env.Title,
		&env.TotalAmount, &env.RemainingAmount, &env.TotalCount, &env.RemainingCount,
		&pending, &env.CreatedAt, &env.ExpiresAt, &env.IsExpired)
	if err == pgx.ErrNoRows {
		if channelIndex > 0 {
			return ClaimResult{Status: ClaimNotFound}
		}
		return ClaimResult{Status: ClaimNoActive}
	}
	if err != nil {
		log.Printf("[envelope] claim lookup failed: %v", err)
		return ClaimResult{Status: ClaimError}
	}
	json.Unmarshal([]byte(pending), &env.PendingAmounts)

	now := time.Now().Unix()
	if env.IsExpired || now >= env.ExpiresAt {
		tx.Rollback(ctx)
		if err := expireOne(env.ID); err != nil {
			log.Printf("[envelope] expiry of %d failed: %v", env.ID, err)
		}
		return ClaimResult{Status: ClaimExpired}
	}

	var already int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM envelope_claims WHERE envelope_id = $1 AND user_id = $2",
		env.ID, userID,
	).Scan(&already); err != nil {
		return ClaimResult{Status: ClaimError}
	}
	if already > 0 {
		return ClaimResult{Status: ClaimAlready}
	}
	if env.RemainingCount == 0 || len(env.PendingAmounts) == 0 {
		return ClaimResult{Status: ClaimEmpty}
	}

	amount := env.PendingAmounts[0]
	env.PendingAmounts = env.PendingAmounts[1:]
	env.RemainingAmount -= amount
	env.RemainingCount--
	newPending, _ := json.Marshal(env.PendingAmounts)

	if _, err := tx.Exec(ctx,
		"UPDATE red_envelopes SET remaining_amount = $2, remaining_count = $3, pending_amounts = $4 WHERE id = $1",
		env.ID, env.RemainingAmount, env.RemainingCount, string(newPending),
	); err != nil {
		return ClaimResult{Status: ClaimError}
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO envelope_claims (envelope_id, user_id, amount, claimed_at) VALUES ($1, $2, $3, $4)",
		env.ID, userID, amount, now,
	); err != nil {
		return ClaimResult{Status: ClaimError}
	}
	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance + $2 WHERE user_id = $1", userID, amount,
	); err != nil {
		return ClaimResult{Status: ClaimError}
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO transactions (user_id, category, amount, time, description) VALUES ($1, $2, $3, $4, $5)",
		userID, utils.CategoryIncome, amount, now, fmt.Sprintf("red_envelope_claim_%d", env.ID),
	); err != nil {
		return ClaimResult{Status: ClaimError}
	}

	result := ClaimResult{Status: ClaimSuccess, Amount: amount}
	if env.RemainingCount == 0 {
		info := &CompletionInfo{
			CreatorID: env.CreatorID,
			Duration:  time.Duration(now-env.CreatedAt) * time.Second,
		}
		if err := tx.QueryRow(ctx,
			`SELECT user_id, amount FROM envelope_claims
			 WHERE envelope_id = $1 AND amount = (SELECT MAX(amount) FROM envelope_claims WHERE envelope_id = $1)
			 LIMIT 1`,
			env.ID,
		).Scan(&info.MaxClaimerID, &info.MaxAmount); err == nil {
			if amount > info.MaxAmount {
				info.MaxClaimerID = userID
				info.MaxAmount = amount
			}
			result.Completion = info
		} else {
			result.Completion = &CompletionInfo{CreatorID: env.CreatorID, Duration: info.Duration, MaxClaimerID: userID, MaxAmount: amount}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ClaimResult{Status: ClaimError}
	}

	utils.InvalidateUserCache(userID)
	return result
}

// ListActive returns the channel's unexpired envelopes, newest first.
func ListActive(channelID string) ([]*Envelope, error) {
	now := time.Now().Unix()

	if utils.DB == nil {
		memStore.mu.Lock()
		defer memStore.mu.Unlock()
		var out []*Envelope
		for _, e := range memStore.envelopes {
			if e.ChannelID == channelID && !e.IsExpired && now < e.ExpiresAt {
				c := *e
				out = append(out, &c)
			}
		}
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				if out[j].CreatedAt > out[i].CreatedAt {
					out[i], out[j] = out[j], out[i]
				}
			}
		}
		return out, nil
	}

	rows, err := utils.DB.Query(context.Background(),
		`SELECT id, creator_id, channel_id, channel_index, title, total_amount,
		 remaining_amount, total_count, remaining_count, created_at, expires_at
		 FROM red_envelopes
		 WHERE channel_id = $1 AND NOT is_expired AND expires_at > $2
		 ORDER BY created_at DESC`,
		channelID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	var out []*Envelope
	for rows.Next() {
		e := &Envelope{}
		if err := rows.Scan(&e.ID, &e.CreatorID, &e.ChannelID, &e.ChannelIndex, &e.Title,
			&e.TotalAmount, &e.RemainingAmount, &e.TotalCount, &e.RemainingCount,
			&e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan envelope: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
