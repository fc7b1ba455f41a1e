package mailbox

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"kasumi-go/utils"
)

// Mail is one template row. Broadcast mail has no recipient rows until a
// user lists their mailbox.
type Mail struct {
	ID          int64
	Title       string
	Content     string
	StarShards  int64
	ExpireDays  int
	SenderID    string
	IsBroadcast bool
	CreatedAt   int64
}

// ExpiresAt is the moment the template stops being listed and becomes
// eligible for cleanup.
func (m *Mail) ExpiresAt() int64 {
	return m.CreatedAt + int64(m.ExpireDays)*86400
}

// MailItem is a mail joined with one recipient's read state.
type MailItem struct {
	Mail
	IsRead bool
	ReadAt int64
}

type recipientState struct {
	isRead bool
	readAt int64
}

var memMail = struct {
	mu         sync.Mutex
	mails      map[int64]*Mail
	recipients map[int64]map[string]*recipientState
	nextID     int64
}{mails: make(map[int64]*Mail), recipients: make(map[int64]map[string]*recipientState), nextID: 1}

// ResetMemMail clears the in-memory mail store. Test helper.
func ResetMemMail() {
	memMail.mu.Lock()
	defer memMail.mu.Unlock()
	memMail.mails = make(map[int64]*Mail)
	memMail.recipients = make(map[int64]map[string]*recipientState)
	memMail.nextID = 1
	resetMemScheduledLocked()
}

// SendMail writes a direct mail template plus its single recipient row.
func SendMail(recipientID, title, content string, starShards int64, expireDays int, senderID string) (int64, error) {
	if expireDays <= 0 {
		expireDays = utils.MailDefaultExpireDays
	}
	now := time.Now().Unix()

	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		id := memMail.nextID
		memMail.nextID++
		memMail.mails[id] = &Mail{
			ID: id, Title: title, Content: content, StarShards: starShards,
			ExpireDays: expireDays, SenderID: senderID, CreatedAt: now,
		}
		memMail.recipients[id] = map[string]*recipientState{recipientID: {}}
		return id, nil
	}

	ctx := context.Background()
	tx, err := utils.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO mails (title, content, star_shards, expire_days, sender_id, is_broadcast, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6) RETURNING id`,
		title, content, starShards, expireDays, senderID, now,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to store mail: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO mail_recipients (mail_id, user_id) VALUES ($1, $2)", id, recipientID,
	); err != nil {
		return 0, fmt.Errorf("failed to store recipient: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// SendBroadcast writes a broadcast template only; recipient rows materialize
// lazily when users open their mailboxes.
func SendBroadcast(title, content string, starShards int64, expireDays int, senderID string) (int64, error) {
	if expireDays <= 0 {
		expireDays = utils.MailDefaultExpireDays
	}
	now := time.Now().Unix()

	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		id := memMail.nextID
		memMail.nextID++
		memMail.mails[id] = &Mail{
			ID: id, Title: title, Content: content, StarShards: starShards,
			ExpireDays: expireDays, SenderID: senderID, IsBroadcast: true, CreatedAt: now,
		}
		memMail.recipients[id] = make(map[string]*recipientState)
		return id, nil
	}

	var id int64
	err := utils.DB.QueryRow(context.Background(),
		`INSERT INTO mails (title, content, star_shards, expire_days, sender_id, is_broadcast, created_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6) RETURNING id`,
		title, content, starShards, expireDays, senderID, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to store broadcast: %w", err)
	}
	return id, nil
}

// ListMail returns the user's unexpired mail newest-first, materializing a
// recipient row for every live broadcast the user has not seen yet.
func ListMail(userID string) ([]MailItem, error) {
	now := time.Now().Unix()

	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()

		var items []MailItem
		for id, m := range memMail.mails {
			if now >= m.ExpiresAt() {
				continue
			}
			recips := memMail.recipients[id]
			state, ok := recips[userID]
			if !ok {
				if !m.IsBroadcast {
					continue
				}
				state = &recipientState{}
				recips[userID] = state
			}
			items = append(items, MailItem{Mail: *m, IsRead: state.isRead, ReadAt: state.readAt})
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].CreatedAt != items[j].CreatedAt {
				return items[i].CreatedAt > items[j].CreatedAt
			}
			return items[i].ID > items[j].ID
		})
		return items, nil
	}

	ctx := context.Background()
	if _, err := utils.DB.Exec(ctx,
		`INSERT INTO mail_recipients (mail_id, user_id)
		 SELECT m.id, $1 FROM mails m
		 WHERE m.is_broadcast AND m.created_at + m.expire_days * 86400 > $2
		 ON CONFLICT (mail_id, user_id) DO NOTHING`,
		userID, now,
	); err != nil {
		return nil, fmt.Errorf("failed to materialize broadcasts: %w", err)
	}

	rows, err := utils.DB.Query(ctx,
		`SELECT m.id, m.title, m.content, m.star_shards, m.expire_days, m.sender_id, m.is_broadcast,
		        m.created_at, r.is_read, COALESCE(r.read_at, 0)
		 FROM mail_recipients r JOIN mails m ON m.id = r.mail_id
		 WHERE r.user_id = $1 AND m.created_at + m.expire_days * 86400 > $2
		 ORDER BY m.created_at DESC, m.id DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail: %w", err)
	}
	defer rows.Close()

	var items []MailItem
	for rows.Next() {
		var it MailItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Content, &it.StarShards, &it.ExpireDays,
			&it.SenderID, &it.IsBroadcast, &it.CreatedAt, &it.IsRead, &it.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan mail: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// ReadMail marks one listed mail read and, on the first read only, credits
// its shard reward. Returns the item and whether the reward was granted.
func ReadMail(userID string, index int) (*MailItem, bool, error) {
	items, err := ListMail(userID)
	if err != nil {
		return nil, false, err
	}
	if index < 1 || index > len(items) {
		return nil, false, fmt.Errorf("mail not found: %d", index)
	}
	item := items[index-1]
	if item.IsRead {
		return &item, false, nil
	}

	now := time.Now().Unix()

	if utils.DB == nil {
		memMail.mu.Lock()
		state := memMail.recipients[item.ID][userID]
		rewarded := false
		if state != nil && !state.isRead {
			state.isRead = true
			state.readAt = now
			rewarded = true
		}
		memMail.mu.Unlock()
		if !rewarded {
			return &item, false, nil
		}
	} else {
		tag, err := utils.DB.Exec(context.Background(),
			"UPDATE mail_recipients SET is_read = TRUE, read_at = $3 WHERE mail_id = $1 AND user_id = $2 AND NOT is_read",
			item.ID, userID, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to mark mail read: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &item, false, nil
		}
	}

	item.IsRead = true
	item.ReadAt = now
	if item.StarShards > 0 {
		if err := utils.Add(userID, item.StarShards, fmt.Sprintf("mail_reward_%d", item.ID)); err != nil {
			return &item, false, err
		}
		return &item, true, nil
	}
	return &item, false, nil
}

// CleanupExpired deletes expired templates; recipient rows cascade.
func CleanupExpired(now time.Time) (int, error) {
	cutoff := now.Unix()

	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		removed := 0
		for id, m := range memMail.mails {
			if cutoff >= m.ExpiresAt() {
				delete(memMail.mails, id)
				delete(memMail.recipients, id)
				removed++
			}
		}
		return removed, nil
	}

	tag, err := utils.DB.Exec(context.Background(),
		"DELETE FROM mails WHERE created_at + expire_days * 86400 <= $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up mail: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var cleanupDone chan bool

// nextCleanupDelay returns the wait until the next 03:00 local run.
func nextCleanupDelay(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), utils.MailCleanupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// StartCleanupLoop runs the 03:00 daily expired-mail cleanup.
func StartCleanupLoop() {
	cleanupDone = make(chan bool)
	go func() {
		for {
			timer := time.NewTimer(nextCleanupDelay(time.Now()))
			select {
			case <-timer.C:
				if n, err := CleanupExpired(time.Now()); err != nil {
					log.Printf("[mailbox] cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("[mailbox] removed %d expired mails", n)
				}
			case <-cleanupDone:
				timer.Stop()
				return
			}
		}
	}()
}

// StopCleanupLoop stops the cleanup loop.
func StopCleanupLoop() {
	if cleanupDone != nil {
		cleanupDone <- true
	}
}
