package utils

import (
	"math/rand"
	"testing"
	"time"
)

func resetLedger(t *testing.T) {
	t.Helper()
	ResetMemLedger()
}

func TestGetUserAutoCreate(t *testing.T) {
	resetLedger(t)

	user, err := GetUser("100")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Balance != 0 || user.Level != 1 || user.LastDailyTime != 0 {
		t.Errorf("new user = %+v, want balance 0 level 1", user)
	}
}

func TestAddCostSet(t *testing.T) {
	resetLedger(t)

	if err := Add("100", 50, "test income"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := Cost("100", 20, "test expense"); err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	user, _ := GetUser("100")
	if user.Balance != 30 {
		t.Errorf("balance = %d, want 30", user.Balance)
	}

	if err := Add("100", -1, "bad"); err == nil {
		t.Error("Add accepted a negative amount")
	}
	if err := Cost("100", -1, "bad"); err == nil {
		t.Error("Cost accepted a negative amount")
	}

	if err := Set("100", 7, "admin set"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	user, _ = GetUser("100")
	if user.Balance != 7 {
		t.Errorf("balance after set = %d, want 7", user.Balance)
	}
}

// Every balance change must carry a matching transaction row.
func TestLedgerInvariant(t *testing.T) {
	resetLedger(t)

	Add("100", 40, "income a")
	Cost("100", 15, "expense b")
	Add("100", 5, "income c")

	txns, err := GetUserTransactions("100", "", 10)
	if err != nil {
		t.Fatalf("GetUserTransactions failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txns))
	}

	var sum int64
	for _, txn := range txns {
		switch txn.Category {
		case CategoryIncome:
			sum += txn.Amount
		case CategoryExpense:
			sum -= txn.Amount
		}
	}
	user, _ := GetUser("100")
	if sum != user.Balance {
		t.Errorf("transaction sum %d != balance %d", sum, user.Balance)
	}
}

func TestTransfer(t *testing.T) {
	resetLedger(t)
	Add("a", 100, "seed")

	if err := Transfer("a", "b", 40, "gift"); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	from, _ := GetUser("a")
	to, _ := GetUser("b")
	if from.Balance != 60 || to.Balance != 40 {
		t.Errorf("balances = %d/%d, want 60/40", from.Balance, to.Balance)
	}

	fromTxns, _ := GetUserTransactions("a", "transfer_to_b", 5)
	if len(fromTxns) != 1 || fromTxns[0].Category != CategoryExpense {
		t.Errorf("sender leg missing: %+v", fromTxns)
	}
	toTxns, _ := GetUserTransactions("b", "transfer_from_a", 5)
	if len(toTxns) != 1 || toTxns[0].Category != CategoryIncome {
		t.Errorf("recipient leg missing: %+v", toTxns)
	}

	if err := Transfer("a", "a", 10, "self"); err == nil {
		t.Error("Transfer accepted a self transfer")
	}
	if err := Transfer("a", "b", 0, "zero"); err == nil {
		t.Error("Transfer accepted a non-positive amount")
	}
}

func TestDailyIdempotentPerLocalDay(t *testing.T) {
	resetLedger(t)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	first, err := Daily("100", now)
	if err != nil || !first {
		t.Fatalf("first daily = %v, %v; want true", first, err)
	}

	again, _ := Daily("100", now.Add(5*time.Hour))
	if again {
		t.Error("second daily on the same day succeeded")
	}

	nextDay, _ := Daily("100", now.Add(24*time.Hour))
	if !nextDay {
		t.Error("daily on the next day failed")
	}
}

func TestDailyBonusAmountRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		bonus := DailyBonusAmount(rng)
		if bonus < DailyBonusMin || bonus > DailyBonusMax {
			t.Fatalf("bonus %d outside [%d, %d]", bonus, DailyBonusMin, DailyBonusMax)
		}
	}
}

func TestUpgradeCost(t *testing.T) {
	cases := []struct {
		level int
		want  int64
	}{
		{1, 4},
		{20, 23},
		{21, 26},  // 25 + 1^1.3
		{30, 44},  // 25 + 10^1.3 = 25 + 19.95
		{61, 157}, // 150 * 1.05
	}
	for _, tc := range cases {
		if got := UpgradeCost(tc.level); got != tc.want {
			t.Errorf("UpgradeCost(%d) = %d, want %d", tc.level, got, tc.want)
		}
	}
}

func TestLevelSaturatesAtOne(t *testing.T) {
	resetLedger(t)

	IncreaseLevel("100", 2)
	if lvl, _ := GetLevel("100"); lvl != 3 {
		t.Errorf("level = %d, want 3", lvl)
	}
	DecreaseLevel("100", 10)
	if lvl, _ := GetLevel("100"); lvl != 1 {
		t.Errorf("level after decrease = %d, want 1", lvl)
	}
}

func TestGetUserRank(t *testing.T) {
	resetLedger(t)

	Add("a", 100, "seed")
	Add("b", 50, "seed")
	SetLevel("c", 3)

	info, err := GetUserRank("b")
	if err != nil {
		t.Fatalf("GetUserRank failed: %v", err)
	}
	// c leads on level, a leads on balance at equal level
	if info.Rank != 3 {
		t.Errorf("rank = %d, want 3", info.Rank)
	}
	if info.DistanceToNextRank != 50 {
		t.Errorf("distance to next rank = %d, want 50", info.DistanceToNextRank)
	}
}

func TestGetTopUsersOrder(t *testing.T) {
	resetLedger(t)

	Add("a", 10, "seed")
	Add("b", 99, "seed")
	SetLevel("c", 5)

	top, err := GetTopUsers(3)
	if err != nil {
		t.Fatalf("GetTopUsers failed: %v", err)
	}
	if len(top) != 3 || top[0].UserID != "c" || top[1].UserID != "b" {
		ids := make([]string, len(top))
		for i, u := range top {
			ids[i] = u.UserID
		}
		t.Errorf("top order = %v, want [c b a]", ids)
	}
}
