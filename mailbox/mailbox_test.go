package mailbox

import (
	"testing"
	"time"

	"kasumi-go/utils"
)

func resetAll(t *testing.T) {
	t.Helper()
	utils.ResetMemLedger()
	ResetMemMail()
}

func TestDirectMailDelivery(t *testing.T) {
	resetAll(t)

	if _, err := SendMail("u1", "hello", "body", 0, 7, "admin"); err != nil {
		t.Fatalf("SendMail failed: %v", err)
	}

	items, err := ListMail("u1")
	if err != nil || len(items) != 1 {
		t.Fatalf("ListMail = %d items, %v; want 1", len(items), err)
	}
	if items[0].Title != "hello" || items[0].IsRead {
		t.Errorf("item = %+v", items[0])
	}

	// Direct mail is invisible to everyone else
	others, _ := ListMail("u2")
	if len(others) != 0 {
		t.Errorf("direct mail leaked to another user: %d items", len(others))
	}
}

func TestReadMailRewardsOnce(t *testing.T) {
	resetAll(t)
	SendMail("u1", "gift", "enjoy", 25, 7, "admin")

	item, rewarded, err := ReadMail("u1", 1)
	if err != nil || !rewarded {
		t.Fatalf("first read: rewarded %v err %v, want reward", rewarded, err)
	}
	if !item.IsRead {
		t.Error("item not marked read")
	}

	user, _ := utils.GetUser("u1")
	if user.Balance != 25 {
		t.Errorf("balance = %d, want 25", user.Balance)
	}

	// Second read is idempotent
	_, rewarded, err = ReadMail("u1", 1)
	if err != nil || rewarded {
		t.Errorf("second read: rewarded %v err %v, want no reward", rewarded, err)
	}
	user, _ = utils.GetUser("u1")
	if user.Balance != 25 {
		t.Errorf("balance after reread = %d, want 25", user.Balance)
	}
}

func TestBroadcastMaterializesLazily(t *testing.T) {
	resetAll(t)
	SendBroadcast("news", "to everyone", 5, 7, "admin")

	// Each user sees the broadcast on first list and claims independently
	for _, uid := range []string{"u1", "u2"} {
		items, err := ListMail(uid)
		if err != nil || len(items) != 1 {
			t.Fatalf("%s: ListMail = %d items, %v", uid, len(items), err)
		}
		if _, rewarded, _ := ReadMail(uid, 1); !rewarded {
			t.Errorf("%s: broadcast reward not granted", uid)
		}
	}

	u1, _ := utils.GetUser("u1")
	u2, _ := utils.GetUser("u2")
	if u1.Balance != 5 || u2.Balance != 5 {
		t.Errorf("balances = %d/%d, want 5/5", u1.Balance, u2.Balance)
	}
}

func TestListMailNewestFirst(t *testing.T) {
	resetAll(t)
	id1, _ := SendMail("u1", "older", "x", 0, 7, "admin")

	memMail.mu.Lock()
	memMail.mails[id1].CreatedAt -= 100
	memMail.mu.Unlock()

	SendMail("u1", "newer", "y", 0, 7, "admin")

	items, _ := ListMail("u1")
	if len(items) != 2 || items[0].Title != "newer" {
		t.Errorf("order wrong: %+v", items)
	}
}

func TestExpiredMailHiddenAndCleaned(t *testing.T) {
	resetAll(t)
	id, _ := SendMail("u1", "stale", "x", 0, 1, "admin")

	memMail.mu.Lock()
	memMail.mails[id].CreatedAt = time.Now().Unix() - 2*86400
	memMail.mu.Unlock()

	items, _ := ListMail("u1")
	if len(items) != 0 {
		t.Errorf("expired mail still listed: %+v", items)
	}

	n, err := CleanupExpired(time.Now())
	if err != nil || n != 1 {
		t.Errorf("CleanupExpired = %d, %v; want 1", n, err)
	}
}

func TestNextCleanupDelay(t *testing.T) {
	before := time.Date(2025, 6, 1, 2, 0, 0, 0, time.Local)
	if d := nextCleanupDelay(before); d != time.Hour {
		t.Errorf("delay at 02:00 = %v, want 1h", d)
	}
	after := time.Date(2025, 6, 1, 4, 0, 0, 0, time.Local)
	if d := nextCleanupDelay(after); d != 23*time.Hour {
		t.Errorf("delay at 04:00 = %v, want 23h", d)
	}
}

func TestParseScheduleTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	if got, err := ParseScheduleTime("+30m", now); err != nil || got != now.Add(30*time.Minute).Unix() {
		t.Errorf("+30m = %d, %v", got, err)
	}
	if got, err := ParseScheduleTime("+2h", now); err != nil || got != now.Add(2*time.Hour).Unix() {
		t.Errorf("+2h = %d, %v", got, err)
	}
	if got, err := ParseScheduleTime("+3d", now); err != nil || got != now.AddDate(0, 0, 3).Unix() {
		t.Errorf("+3d = %d, %v", got, err)
	}
	want := time.Date(2025, 7, 1, 9, 30, 0, 0, time.Local).Unix()
	if got, err := ParseScheduleTime("2025-07-01 09:30", now); err != nil || got != want {
		t.Errorf("absolute = %d, %v; want %d", got, err, want)
	}
	if _, err := ParseScheduleTime("tomorrow", now); err == nil {
		t.Error("garbage time string accepted")
	}
	if _, err := ParseScheduleTime("+0m", now); err == nil {
		t.Error("non-positive offset accepted")
	}
}

func TestScheduledLifecycle(t *testing.T) {
	resetAll(t)
	due := time.Now().Add(-time.Minute).Unix()

	sm, err := CreateScheduled("greet", "u1,u2", "hi", "hello", 3, 7, due, "admin")
	if err != nil {
		t.Fatalf("CreateScheduled failed: %v", err)
	}
	if _, err := CreateScheduled("greet", "all", "dup", "x", 0, 7, due, "admin"); err != ErrScheduleExists {
		t.Errorf("duplicate name = %v, want ErrScheduleExists", err)
	}

	// Edit before dispatch updates in place
	newTitle := "hi there"
	if err := UpdateScheduled("greet", ScheduledUpdate{Title: &newTitle}); err != nil {
		t.Fatalf("UpdateScheduled failed: %v", err)
	}

	if n := ProcessDue(time.Now()); n != 1 {
		t.Fatalf("ProcessDue = %d, want 1", n)
	}

	// CSV recipients each get a direct mail with the edited title
	for _, uid := range []string{"u1", "u2"} {
		items, _ := ListMail(uid)
		if len(items) != 1 || items[0].Title != "hi there" {
			t.Errorf("%s mailbox = %+v", uid, items)
		}
	}

	// Sent mail is immutable but still deletable
	if err := UpdateScheduled("greet", ScheduledUpdate{Title: &newTitle}); err != ErrAlreadySent {
		t.Errorf("edit after send = %v, want ErrAlreadySent", err)
	}
	if err := DeleteScheduled("greet"); err != nil {
		t.Errorf("delete after send failed: %v", err)
	}
	if _, err := GetScheduled("greet"); err != ErrScheduleNotFound {
		t.Errorf("deleted schedule still found: %v", err)
	}
	_ = sm
}

func TestScheduledBroadcastDispatch(t *testing.T) {
	resetAll(t)
	due := time.Now().Add(-time.Second).Unix()
	CreateScheduled("announce", "all", "news", "to all", 0, 7, due, "admin")

	if n := ProcessDue(time.Now()); n != 1 {
		t.Fatalf("ProcessDue = %d, want 1", n)
	}

	// Dispatch created one broadcast template: any user sees it
	items, _ := ListMail("someone")
	if len(items) != 1 || !items[0].IsBroadcast {
		t.Errorf("broadcast not delivered: %+v", items)
	}

	// Already sent, never dispatched twice
	if n := ProcessDue(time.Now()); n != 0 {
		t.Errorf("second ProcessDue = %d, want 0", n)
	}
}

func TestScheduledNotDueYet(t *testing.T) {
	resetAll(t)
	future := time.Now().Add(time.Hour).Unix()
	CreateScheduled("later", "all", "soon", "x", 0, 7, future, "admin")

	if n := ProcessDue(time.Now()); n != 0 {
		t.Errorf("ProcessDue dispatched a future mail: %d", n)
	}
}
