package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"kasumi-go/utils"
)

// ScheduledMail is a named mail queued for future dispatch. Recipients is
// either "all" for a broadcast or a comma-separated user id list.
type ScheduledMail struct {
	ID            int64
	Name          string
	Recipients    string
	Title         string
	Content       string
	StarShards    int64
	ExpireDays    int
	ScheduledTime int64
	CreatedAt     int64
	CreatedBy     string
	IsSent        bool
	SentAt        int64
}

var (
	ErrScheduleNotFound = errors.New("scheduled mail not found")
	ErrScheduleExists   = errors.New("scheduled mail name already in use")
	ErrAlreadySent      = errors.New("scheduled mail already sent")
)

var memScheduled = struct {
	byName map[string]*ScheduledMail
	nextID int64
}{byName: make(map[string]*ScheduledMail), nextID: 1}

// callers hold memMail.mu
func resetMemScheduledLocked() {
	memScheduled.byName = make(map[string]*ScheduledMail)
	memScheduled.nextID = 1
}

// ParseScheduleTime accepts "2006-01-02 15:04" in local time or a relative
// offset of the form +Nm, +Nh or +Nd.
func ParseScheduleTime(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") && len(s) >= 3 {
		n, err := strconv.Atoi(s[1 : len(s)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid schedule offset: %q", s)
		}
		switch s[len(s)-1] {
		case 'm':
			return now.Add(time.Duration(n) * time.Minute).Unix(), nil
		case 'h':
			return now.Add(time.Duration(n) * time.Hour).Unix(), nil
		case 'd':
			return now.AddDate(0, 0, n).Unix(), nil
		}
		return 0, fmt.Errorf("invalid schedule offset: %q", s)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location())
	if err != nil {
		return 0, fmt.Errorf("invalid schedule time: %q", s)
	}
	return t.Unix(), nil
}

// CreateScheduled queues a mail under a unique name. An empty name gets an
// auto-generated one.
func CreateScheduled(name, recipients, title, content string, starShards int64, expireDays int, scheduledTime int64, createdBy string) (*ScheduledMail, error) {
	if expireDays <= 0 {
		expireDays = utils.MailDefaultExpireDays
	}
	now := time.Now().Unix()
	if name == "" {
		name = fmt.Sprintf("mail_%d", now)
	}
	sm := &ScheduledMail{
		Name: name, Recipients: recipients, Title: title, Content: content,
		StarShards: starShards, ExpireDays: expireDays,
		ScheduledTime: scheduledTime, CreatedAt: now, CreatedBy: createdBy,
	}

	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		if _, dup := memScheduled.byName[name]; dup {
			return nil, ErrScheduleExists
		}
		sm.ID = memScheduled.nextID
		memScheduled.nextID++
		memScheduled.byName[name] = sm
		return sm, nil
	}

	err := utils.DB.QueryRow(context.Background(),
		`INSERT INTO scheduled_mails (name, recipients, title, content, star_shards, expire_days, scheduled_time, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (name) DO NOTHING RETURNING id`,
		name, recipients, title, content, starShards, expireDays, scheduledTime, now, createdBy,
	).Scan(&sm.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to schedule mail: %w", err)
	}
	return sm, nil
}

// GetScheduled looks a scheduled mail up by name.
func GetScheduled(name string) (*ScheduledMail, error) {
	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		sm, ok := memScheduled.byName[name]
		if !ok {
			return nil, ErrScheduleNotFound
		}
		cp := *sm
		return &cp, nil
	}

	sm := &ScheduledMail{}
	err := utils.DB.QueryRow(context.Background(),
		`SELECT id, name, recipients, title, content, star_shards, expire_days, scheduled_time, created_at, created_by, is_sent, COALESCE(sent_at, 0)
		 FROM scheduled_mails WHERE name = $1`, name,
	).Scan(&sm.ID, &sm.Name, &sm.Recipients, &sm.Title, &sm.Content, &sm.StarShards,
		&sm.ExpireDays, &sm.ScheduledTime, &sm.CreatedAt, &sm.CreatedBy, &sm.IsSent, &sm.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled mail: %w", err)
	}
	return sm, nil
}

// ListScheduled returns scheduled mails ordered by dispatch time, optionally
// including ones already sent.
func ListScheduled(includeSent bool) ([]ScheduledMail, error) {
	if utils.DB == nil {
		memMail.mu.Lock()
		var out []ScheduledMail
		for _, sm := range memScheduled.byName {
			if sm.IsSent && !includeSent {
				continue
			}
			out = append(out, *sm)
		}
		memMail.mu.Unlock()
		sort.Slice(out, func(i, j int) bool {
			if out[i].ScheduledTime != out[j].ScheduledTime {
				return out[i].ScheduledTime < out[j].ScheduledTime
			}
			return out[i].ID < out[j].ID
		})
		return out, nil
	}

	query := `SELECT id, name, recipients, title, content, star_shards, expire_days, scheduled_time, created_at, created_by, is_sent, COALESCE(sent_at, 0)
	          FROM scheduled_mails`
	if !includeSent {
		query += " WHERE NOT is_sent"
	}
	query += " ORDER BY scheduled_time ASC, id ASC"

	rows, err := utils.DB.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled mail: %w", err)
	}
	defer rows.Close()

	var out []ScheduledMail
	for rows.Next() {
		var sm ScheduledMail
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.Recipients, &sm.Title, &sm.Content, &sm.StarShards,
			&sm.ExpireDays, &sm.ScheduledTime, &sm.CreatedAt, &sm.CreatedBy, &sm.IsSent, &sm.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled mail: %w", err)
		}
		out = append(out, sm)
	}
	return out, nil
}

// ScheduledUpdate holds the fields an edit may change; nil fields keep their
// current value.
type ScheduledUpdate struct {
	Recipients    *string
	Title         *string
	Content       *string
	StarShards    *int64
	ExpireDays    *int
	ScheduledTime *int64
}

// UpdateScheduled edits an unsent scheduled mail. Sent mails are immutable.
func UpdateScheduled(name string, upd ScheduledUpdate) error {
	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		sm, ok := memScheduled.byName[name]
		if !ok {
			return ErrScheduleNotFound
		}
		if sm.IsSent {
			return ErrAlreadySent
		}
		if upd.Recipients != nil {
			sm.Recipients = *upd.Recipients
		}
		if upd.Title != nil {
			sm.Title = *upd.Title
		}
		if upd.Content != nil {
			sm.Content = *upd.Content
		}
		if upd.StarShards != nil {
			sm.StarShards = *upd.StarShards
		}
		if upd.ExpireDays != nil {
			sm.ExpireDays = *upd.ExpireDays
		}
		if upd.ScheduledTime != nil {
			sm.ScheduledTime = *upd.ScheduledTime
		}
		return nil
	}

	sm, err := GetScheduled(name)
	if err != nil {
		return err
	}
	if sm.IsSent {
		return ErrAlreadySent
	}
	if upd.Recipients != nil {
		sm.Recipients = *upd.Recipients
	}
	if upd.Title != nil {
		sm.Title = *upd.Title
	}
	if upd.Content != nil {
		sm.Content = *upd.Content
	}
	if upd.StarShards != nil {
		sm.StarShards = *upd.StarShards
	}
	if upd.ExpireDays != nil {
		sm.ExpireDays = *upd.ExpireDays
	}
	if upd.ScheduledTime != nil {
		sm.ScheduledTime = *upd.ScheduledTime
	}

	tag, err := utils.DB.Exec(context.Background(),
		`UPDATE scheduled_mails
		 SET recipients = $2, title = $3, content = $4, star_shards = $5, expire_days = $6, scheduled_time = $7
		 WHERE name = $1 AND NOT is_sent`,
		name, sm.Recipients, sm.Title, sm.Content, sm.StarShards, sm.ExpireDays, sm.ScheduledTime,
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduled mail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySent
	}
	return nil
}

// DeleteScheduled removes a scheduled mail by name. Deleting a sent record
// only drops the history row; the delivered mail stays in mailboxes.
func DeleteScheduled(name string) error {
	if utils.DB == nil {
		memMail.mu.Lock()
		defer memMail.mu.Unlock()
		sm, ok := memScheduled.byName[name]
		if !ok {
			return ErrScheduleNotFound
		}
		if sm.IsSent {
			log.Printf("[mailbox] deleting sent schedule %q; delivered mail is unaffected", name)
		}
		delete(memScheduled.byName, name)
		return nil
	}

	sm, err := GetScheduled(name)
	if err != nil {
		return err
	}
	if sm.IsSent {
		log.Printf("[mailbox] deleting sent schedule %q; delivered mail is unaffected", name)
	}
	if _, err := utils.DB.Exec(context.Background(),
		"DELETE FROM scheduled_mails WHERE name = $1", name,
	); err != nil {
		return fmt.Errorf("failed to delete scheduled mail: %w", err)
	}
	return nil
}

// ProcessDue dispatches every unsent scheduled mail whose time has passed.
// "all" recipients become one broadcast template; anything else is split on
// commas into direct sends. Returns the number dispatched.
func ProcessDue(now time.Time) int {
	cutoff := now.Unix()

	var due []ScheduledMail
	if utils.DB == nil {
		memMail.mu.Lock()
		for _, sm := range memScheduled.byName {
			if !sm.IsSent && sm.ScheduledTime <= cutoff {
				due = append(due, *sm)
			}
		}
		memMail.mu.Unlock()
	} else {
		all, err := ListScheduled(false)
		if err != nil {
			log.Printf("[mailbox] dispatch scan failed: %v", err)
			return 0
		}
		for _, sm := range all {
			if sm.ScheduledTime <= cutoff {
				due = append(due, sm)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime < due[j].ScheduledTime })

	sent := 0
	for _, sm := range due {
		if err := dispatch(&sm); err != nil {
			log.Printf("[mailbox] dispatch of %q failed: %v", sm.Name, err)
			continue
		}
		markSent(sm.Name, cutoff)
		sent++
	}
	return sent
}

func dispatch(sm *ScheduledMail) error {
	if strings.EqualFold(strings.TrimSpace(sm.Recipients), "all") {
		_, err := SendBroadcast(sm.Title, sm.Content, sm.StarShards, sm.ExpireDays, sm.CreatedBy)
		return err
	}
	for _, id := range strings.Split(sm.Recipients, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := SendMail(id, sm.Title, sm.Content, sm.StarShards, sm.ExpireDays, sm.CreatedBy); err != nil {
			return err
		}
	}
	return nil
}

func markSent(name string, at int64) {
	if utils.DB == nil {
		memMail.mu.Lock()
		if sm, ok := memScheduled.byName[name]; ok {
			sm.IsSent = true
			sm.SentAt = at
		}
		memMail.mu.Unlock()
		return
	}
	if _, err := utils.DB.Exec(context.Background(),
		"UPDATE scheduled_mails SET is_sent = TRUE, sent_at = $2 WHERE name = $1", name, at,
	); err != nil {
		log.Printf("[mailbox] failed to mark %q sent: %v", name, err)
	}
}

var dispatcherDone chan bool

// StartDispatcher polls for due scheduled mail.
func StartDispatcher() {
	dispatcherDone = make(chan bool)
	ticker := time.NewTicker(utils.ScheduledMailPoll)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := ProcessDue(time.Now()); n > 0 {
					log.Printf("[mailbox] dispatched %d scheduled mails", n)
				}
			case <-dispatcherDone:
				return
			}
		}
	}()
}

// StopDispatcher stops the dispatch loop.
func StopDispatcher() {
	if dispatcherDone != nil {
		dispatcherDone <- true
	}
}
