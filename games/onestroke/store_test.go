package onestroke

import (
	"testing"

	"kasumi-go/utils"
)

func TestLeaderboardBestRunPerUser(t *testing.T) {
	utils.ResetMemLedger()
	ResetMemRows()

	recordResult("a", "normal", 20, 5, 30.0, true)
	recordResult("a", "normal", 20, 8, 12.5, true)
	recordResult("b", "normal", 20, 6, 20.0, true)
	recordResult("c", "normal", 20, 0, 5.0, false) // incomplete, excluded
	recordResult("d", "easy", 10, 3, 1.0, true)    // other difficulty

	entries, err := Leaderboard("normal", 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].UserID != "a" || entries[0].ElapsedSeconds != 12.5 {
		t.Errorf("first = %+v, want a at 12.5s", entries[0])
	}
	if entries[1].UserID != "b" {
		t.Errorf("second = %+v, want b", entries[1])
	}
}

func TestLeaderboardLimit(t *testing.T) {
	utils.ResetMemLedger()
	ResetMemRows()

	for i := 0; i < 15; i++ {
		recordResult(string(rune('a'+i)), "hard", 30, 5, float64(i+1), true)
	}
	entries, err := Leaderboard("hard", 10)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("got %d entries, want 10", len(entries))
	}
}
