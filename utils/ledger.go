package utils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// User is the ledger row for one player. Created on first read with
// balance 0, level 1, never-checked-in.
type User struct {
	UserID        string
	Balance       int64
	LastDailyTime int64
	Level         int
}

// Transaction is one append-only ledger entry, written in the same commit
// as the balance change it explains.
type Transaction struct {
	ID          int64
	UserID      string
	Category    string
	Amount      int64
	Time        int64
	Description string
}

// RankInfo describes a user's position on the (level, balance) ladder.
type RankInfo struct {
	Rank                int
	DistanceToNextRank  int64
	DistanceToNextLevel int
}

// In-memory ledger used when no database is configured. Single mutex: every
// mutating operation is one critical section, mirroring the SQL transactions.
var memLedger = struct {
	mu     sync.Mutex
	users  map[string]*User
	txns   []Transaction
	nextID int64
}{users: make(map[string]*User), nextID: 1}

// ResetMemLedger clears the in-memory ledger. Test helper.
func ResetMemLedger() {
	memLedger.mu.Lock()
	defer memLedger.mu.Unlock()
	memLedger.users = make(map[string]*User)
	memLedger.txns = nil
	memLedger.nextID = 1
}

func memGetUser(userID string) *User {
	u, ok := memLedger.users[userID]
	if !ok {
		u = &User{UserID: userID, Balance: 0, LastDailyTime: 0, Level: 1}
		memLedger.users[userID] = u
	}
	return u
}

func memAppendTxn(userID, category string, amount int64, description string) {
	memLedger.txns = append(memLedger.txns, Transaction{
		ID:          memLedger.nextID,
		UserID:      userID,
		Category:    category,
		Amount:      amount,
		Time:        time.Now().Unix(),
		Description: description,
	})
	memLedger.nextID++
}

// GetUser retrieves a user, creating one with defaults if missing.
func GetUser(userID string) (*User, error) {
	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		u := *memGetUser(userID)
		return &u, nil
	}

	ctx := context.Background()
	user := &User{}
	err := DB.QueryRow(ctx,
		"SELECT user_id, balance, last_daily_time, level FROM users WHERE user_id = $1",
		userID,
	).Scan(&user.UserID, &user.Balance, &user.LastDailyTime, &user.Level)
	if err == pgx.ErrNoRows {
		return createUser(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func createUser(userID string) (*User, error) {
	ctx := context.Background()
	_, err := DB.Exec(ctx,
		"INSERT INTO users (user_id, balance, last_daily_time, level) VALUES ($1, 0, 0, 1) ON CONFLICT (user_id) DO NOTHING",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &User{UserID: userID, Balance: 0, LastDailyTime: 0, Level: 1}, nil
}

// applyBalance runs one balance delta plus its transaction row in a single
// database transaction. delta may be negative; the transaction row records
// the absolute amount under the given category.
func applyBalance(userID string, delta int64, category string, amount int64, description string) error {
	if _, err := GetUser(userID); err != nil {
		return err
	}

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		u := memGetUser(userID)
		u.Balance += delta
		memAppendTxn(userID, category, amount, description)
		return nil
	}

	ctx := context.Background()
	tx, err := DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance + $2 WHERE user_id = $1", userID, delta,
	); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO transactions (user_id, category, amount, time, description) VALUES ($1, $2, $3, $4, $5)",
		userID, category, amount, time.Now().Unix(), description,
	); err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx.Commit(ctx)
}

// Add credits amount to the user and appends an income transaction.
func Add(userID string, amount int64, description string) error {
	if amount < 0 {
		return fmt.Errorf("invalid amount: %d", amount)
	}
	InvalidateUserCache(userID)
	return applyBalance(userID, amount, CategoryIncome, amount, description)
}

// Cost debits amount from the user and appends an expense transaction.
// Callers pre-check funds; the ledger does not reject overdraft.
func Cost(userID string, amount int64, description string) error {
	if amount < 0 {
		return fmt.Errorf("invalid amount: %d", amount)
	}
	InvalidateUserCache(userID)
	return applyBalance(userID, -amount, CategoryExpense, amount, description)
}

// Set overwrites the user's balance and appends a set transaction.
func Set(userID string, amount int64, description string) error {
	if amount < 0 {
		return fmt.Errorf("invalid amount: %d", amount)
	}
	InvalidateUserCache(userID)

	if _, err := GetUser(userID); err != nil {
		return err
	}

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		u := memGetUser(userID)
		u.Balance = amount
		memAppendTxn(userID, CategorySet, amount, description)
		return nil
	}

	ctx := context.Background()
	tx, err := DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = $2 WHERE user_id = $1", userID, amount,
	); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO transactions (user_id, category, amount, time, description) VALUES ($1, $2, $3, $4, $5)",
		userID, CategorySet, amount, time.Now().Unix(), description,
	); err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx.Commit(ctx)
}

// Transfer moves amount between two users atomically: the expense leg, the
// income leg, and one summary transfer row against the recipient are all
// visible together or not at all.
func Transfer(fromID, toID string, amount int64, description string) error {
	if amount <= 0 {
		return fmt.Errorf("invalid amount: %d", amount)
	}
	if fromID == toID {
		return fmt.Errorf("cannot transfer to self")
	}
	InvalidateUserCache(fromID)
	InvalidateUserCache(toID)

	if _, err := GetUser(fromID); err != nil {
		return err
	}
	if _, err := GetUser(toID); err != nil {
		return err
	}

	now := time.Now().Unix()

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		from := memGetUser(fromID)
		to := memGetUser(toID)
		from.Balance -= amount
		to.Balance += amount
		memAppendTxn(fromID, CategoryExpense, amount, "transfer_to_"+toID)
		memAppendTxn(toID, CategoryIncome, amount, "transfer_from_"+fromID)
		memAppendTxn(toID, CategoryTransfer, amount, description)
		return nil
	}

	ctx := context.Background()
	tx, err := DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance - $2 WHERE user_id = $1", fromID, amount,
	); err != nil {
		return fmt.Errorf("failed to debit sender: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE users SET balance = balance + $2 WHERE user_id = $1", toID, amount,
	); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", err)
	}

	legs := []struct {
		userID, category, description string
	}{
		{fromID, CategoryExpense, "transfer_to_" + toID},
		{toID, CategoryIncome, "transfer_from_" + fromID},
		{toID, CategoryTransfer, description},
	}
	for _, leg := range legs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO transactions (user_id, category, amount, time, description) VALUES ($1, $2, $3, $4, $5)",
			leg.userID, leg.category, amount, now, leg.description,
		); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// sameLocalDay reports whether two unix timestamps fall on the same calendar
// day in local time.
func sameLocalDay(a, b int64) bool {
	ta := time.Unix(a, 0).Local()
	tb := time.Unix(b, 0).Local()
	ya, ma, da := ta.Date()
	yb, mb, db := tb.Date()
	return ya == yb && ma == mb && da == db
}

// Daily advances the user's check-in marker and reports whether this is the
// first check-in of the local calendar day. The caller credits the bonus.
func Daily(userID string, now time.Time) (bool, error) {
	user, err := GetUser(userID)
	if err != nil {
		return false, err
	}
	if user.LastDailyTime != 0 && sameLocalDay(user.LastDailyTime, now.Unix()) {
		return false, nil
	}
	InvalidateUserCache(userID)

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		memGetUser(userID).LastDailyTime = now.Unix()
		return true, nil
	}

	_, err = DB.Exec(context.Background(),
		"UPDATE users SET last_daily_time = $2 WHERE user_id = $1", userID, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update daily time: %w", err)
	}
	return true, nil
}

// GetLevel returns the user's level.
func GetLevel(userID string) (int, error) {
	user, err := GetUser(userID)
	if err != nil {
		return 0, err
	}
	return user.Level, nil
}

// SetLevel overwrites the user's level; levels below 1 are rejected.
func SetLevel(userID string, level int) error {
	if level < 1 {
		return fmt.Errorf("invalid level: %d", level)
	}
	if _, err := GetUser(userID); err != nil {
		return err
	}
	InvalidateUserCache(userID)

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		memGetUser(userID).Level = level
		return nil
	}

	_, err := DB.Exec(context.Background(),
		"UPDATE users SET level = $2 WHERE user_id = $1", userID, level,
	)
	if err != nil {
		return fmt.Errorf("failed to set level: %w", err)
	}
	return nil
}

// IncreaseLevel raises the user's level by n.
func IncreaseLevel(userID string, n int) error {
	level, err := GetLevel(userID)
	if err != nil {
		return err
	}
	return SetLevel(userID, level+n)
}

// DecreaseLevel lowers the user's level by n, saturating at 1.
func DecreaseLevel(userID string, n int) error {
	level, err := GetLevel(userID)
	if err != nil {
		return err
	}
	level -= n
	if level < 1 {
		level = 1
	}
	return SetLevel(userID, level)
}

// GetTopUsers returns up to limit users ordered by (level desc, balance desc).
func GetTopUsers(limit int) ([]*User, error) {
	if cached, ok := getCachedTopUsers(limit); ok {
		return cached, nil
	}

	var users []*User
	if DB == nil {
		memLedger.mu.Lock()
		for _, u := range memLedger.users {
			c := *u
			users = append(users, &c)
		}
		memLedger.mu.Unlock()
		sort.Slice(users, func(i, j int) bool {
			if users[i].Level != users[j].Level {
				return users[i].Level > users[j].Level
			}
			return users[i].Balance > users[j].Balance
		})
		if len(users) > limit {
			users = users[:limit]
		}
	} else {
		rows, err := DB.Query(context.Background(),
			"SELECT user_id, balance, last_daily_time, level FROM users ORDER BY level DESC, balance DESC LIMIT $1",
			limit,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query top users: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			u := &User{}
			if err := rows.Scan(&u.UserID, &u.Balance, &u.LastDailyTime, &u.Level); err != nil {
				return nil, fmt.Errorf("failed to scan user: %w", err)
			}
			users = append(users, u)
		}
	}

	cacheTopUsers(limit, users)
	return users, nil
}

// GetUserRank computes the user's ladder position. Rank counts users who
// strictly outrank by (level, balance) plus one. The distance to the next
// rank is the balance gap to the nearest higher user, but only when that
// user sits at the same level.
func GetUserRank(userID string) (*RankInfo, error) {
	user, err := GetUser(userID)
	if err != nil {
		return nil, err
	}

	info := &RankInfo{}

	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()

		higher := 0
		var next *User
		minLevelAbove := 0
		for _, u := range memLedger.users {
			if u.Level > user.Level || (u.Level == user.Level && u.Balance > user.Balance) {
				higher++
				if next == nil || u.Level < next.Level || (u.Level == next.Level && u.Balance < next.Balance) {
					next = u
				}
			}
			if u.Level > user.Level && (minLevelAbove == 0 || u.Level < minLevelAbove) {
				minLevelAbove = u.Level
			}
		}
		info.Rank = higher + 1
		if next != nil && next.Level == user.Level {
			info.DistanceToNextRank = next.Balance - user.Balance
		}
		if minLevelAbove > 0 {
			info.DistanceToNextLevel = minLevelAbove - user.Level
		}
		return info, nil
	}

	ctx := context.Background()
	var higher int
	if err := DB.QueryRow(ctx,
		"SELECT COUNT(*) FROM users WHERE level > $1 OR (level = $1 AND balance > $2)",
		user.Level, user.Balance,
	).Scan(&higher); err != nil {
		return nil, fmt.Errorf("failed to count rank: %w", err)
	}
	info.Rank = higher + 1

	var nextLevel int
	var nextBalance int64
	err = DB.QueryRow(ctx,
		`SELECT level, balance FROM users
		 WHERE level > $1 OR (level = $1 AND balance > $2)
		 ORDER BY level ASC, balance ASC LIMIT 1`,
		user.Level, user.Balance,
	).Scan(&nextLevel, &nextBalance)
	if err == nil && nextLevel == user.Level {
		info.DistanceToNextRank = nextBalance - user.Balance
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to find next ranked user: %w", err)
	}

	var minLevelAbove *int
	if err := DB.QueryRow(ctx,
		"SELECT MIN(level) FROM users WHERE level > $1", user.Level,
	).Scan(&minLevelAbove); err != nil {
		return nil, fmt.Errorf("failed to find next level: %w", err)
	}
	if minLevelAbove != nil {
		info.DistanceToNextLevel = *minLevelAbove - user.Level
	}

	return info, nil
}

// GetUserTransactions returns the user's transactions newest-first, optionally
// filtered by exact description. limit <= 0 means no limit.
func GetUserTransactions(userID, descriptionFilter string, limit int) ([]Transaction, error) {
	if DB == nil {
		memLedger.mu.Lock()
		defer memLedger.mu.Unlock()
		var out []Transaction
		for i := len(memLedger.txns) - 1; i >= 0; i-- {
			t := memLedger.txns[i]
			if t.UserID != userID {
				continue
			}
			if descriptionFilter != "" && t.Description != descriptionFilter {
				continue
			}
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out, nil
	}

	query := "SELECT id, user_id, category, amount, time, description FROM transactions WHERE user_id = $1"
	args := []interface{}{userID}
	if descriptionFilter != "" {
		query += " AND description = $2"
		args = append(args, descriptionFilter)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := DB.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Category, &t.Amount, &t.Time, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
