package envelope

import (
	"math/rand"
	"testing"
	"time"

	"kasumi-go/utils"
)

func resetAll(t *testing.T) {
	t.Helper()
	utils.ResetMemLedger()
	ResetMemStore()
}

func TestSplitAmountsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	cases := []struct {
		total int64
		count int
	}{
		{100, 5}, {5, 5}, {6, 5}, {1, 1}, {1000, 1}, {7, 3}, {10000, 50},
	}
	for _, tc := range cases {
		amounts := SplitAmounts(tc.total, tc.count, rng)
		if len(amounts) != tc.count {
			t.Fatalf("Split(%d, %d): len %d", tc.total, tc.count, len(amounts))
		}
		var sum int64
		for _, a := range amounts {
			if a < 1 {
				t.Errorf("Split(%d, %d): share %d < 1", tc.total, tc.count, a)
			}
			sum += a
		}
		if sum != tc.total {
			t.Errorf("Split(%d, %d): sum %d", tc.total, tc.count, sum)
		}
	}
}

func TestSplitAmountsRejectsImpossible(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	if SplitAmounts(4, 5, rng) != nil {
		t.Error("split with total < count succeeded")
	}
	if SplitAmounts(10, 0, rng) != nil {
		t.Error("split with zero count succeeded")
	}
}

func TestCreateDebitsCreator(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	env, err := Create("creator", "ch", "test", 60, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if env.ChannelIndex != 1 {
		t.Errorf("first envelope index = %d, want 1", env.ChannelIndex)
	}

	user, _ := utils.GetUser("creator")
	if user.Balance != 40 {
		t.Errorf("creator balance = %d, want 40", user.Balance)
	}
}

func TestCreateValidation(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	if _, err := Create("creator", "ch", "t", 2, 3); err == nil {
		t.Error("amount < count accepted")
	}
	if _, err := Create("creator", "ch", "t", 0, 0); err == nil {
		t.Error("zero count accepted")
	}
	if _, err := Create("creator", "ch", "t", 500, 2); err == nil {
		t.Error("overdraft accepted")
	}
}

// A create that cannot be funded must leave neither a claimable envelope nor
// a debit behind.
func TestCreateUnfundedLeavesNoEnvelope(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 10, "seed")

	if _, err := Create("creator", "ch", "t", 50, 3); err == nil {
		t.Fatal("underfunded create accepted")
	}

	active, _ := ListActive("ch")
	if len(active) != 0 {
		t.Errorf("unfunded envelope is claimable: %d active", len(active))
	}
	if res := ClaimFrom("ch", "claimer", 0); res.Status != ClaimNoActive {
		t.Errorf("claim status = %s, want no_active", res.Status)
	}
	user, _ := utils.GetUser("creator")
	if user.Balance != 10 {
		t.Errorf("creator balance = %d, want untouched 10", user.Balance)
	}
}

func TestClaimDrainAnnouncesLuckyKing(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	env, err := Create("creator", "ch", "test", 30, 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var total int64
	claimers := []string{"a", "b", "c"}
	var completion *CompletionInfo
	for i, uid := range claimers {
		res := ClaimFrom("ch", uid, 0)
		if res.Status != ClaimSuccess {
			t.Fatalf("claim %d = %s", i, res.Status)
		}
		total += res.Amount
		if i < len(claimers)-1 && res.Completion != nil {
			t.Errorf("claim %d carried completion info before the drain", i)
		}
		if i == len(claimers)-1 {
			completion = res.Completion
		}
	}

	if total != 30 {
		t.Errorf("claimed total = %d, want 30", total)
	}
	if completion == nil {
		t.Fatal("draining claim carried no completion info")
	}
	if completion.CreatorID != "creator" || completion.MaxAmount < 1 {
		t.Errorf("completion = %+v", completion)
	}

	// Conservation: creator paid 30, claimers hold 30
	var held int64
	for _, uid := range claimers {
		u, _ := utils.GetUser(uid)
		held += u.Balance
	}
	if held != 30 {
		t.Errorf("claimers hold %d, want 30", held)
	}
	_ = env
}

func TestClaimRejectsDuplicate(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")
	Create("creator", "ch", "test", 10, 5)

	if res := ClaimFrom("ch", "a", 0); res.Status != ClaimSuccess {
		t.Fatalf("first claim = %s", res.Status)
	}
	if res := ClaimFrom("ch", "a", 0); res.Status != ClaimAlready {
		t.Errorf("second claim = %s, want already_claimed", res.Status)
	}
}

func TestClaimEmptyEnvelope(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")
	Create("creator", "ch", "test", 2, 2)

	ClaimFrom("ch", "a", 0)
	ClaimFrom("ch", "b", 0)
	if res := ClaimFrom("ch", "c", 1); res.Status != ClaimEmpty {
		t.Errorf("claim on drained envelope = %s, want empty", res.Status)
	}
}

func TestClaimNoActive(t *testing.T) {
	resetAll(t)
	if res := ClaimFrom("ch", "a", 0); res.Status != ClaimNoActive {
		t.Errorf("claim with no envelopes = %s, want no_active", res.Status)
	}
}

func TestClaimNotFoundByIndex(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")
	Create("creator", "ch", "test", 10, 2)

	if res := ClaimFrom("ch", "a", 99); res.Status != ClaimNotFound {
		t.Errorf("claim of missing index = %s, want not_found", res.Status)
	}
}

func TestClaimPicksLatestEnvelope(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	first, _ := Create("creator", "ch", "first", 10, 2)
	// Distinct CreatedAt so "latest" is well defined
	memStore.mu.Lock()
	memStore.envelopes[first.ID].CreatedAt -= 10
	memStore.mu.Unlock()
	second, _ := Create("creator", "ch", "second", 20, 2)

	res := ClaimFrom("ch", "a", 0)
	if res.Status != ClaimSuccess {
		t.Fatalf("claim = %s", res.Status)
	}
	memStore.mu.Lock()
	defer memStore.mu.Unlock()
	if len(memStore.claims[second.ID]) != 1 || len(memStore.claims[first.ID]) != 0 {
		t.Error("claim did not hit the latest envelope")
	}
}

func TestExpiredEnvelopeRefundsCreator(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	env, _ := Create("creator", "ch", "test", 30, 3)
	if res := ClaimFrom("ch", "a", 0); res.Status != ClaimSuccess {
		t.Fatal("seed claim failed")
	}
	claimed := int64(0)
	{
		u, _ := utils.GetUser("a")
		claimed = u.Balance
	}

	memStore.mu.Lock()
	memStore.envelopes[env.ID].ExpiresAt = time.Now().Add(-time.Minute).Unix()
	memStore.mu.Unlock()

	n, err := SweepExpired(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("SweepExpired = %d, %v; want 1 expired", n, err)
	}

	// Creator gets back everything unclaimed
	creator, _ := utils.GetUser("creator")
	if creator.Balance != 100-claimed {
		t.Errorf("creator balance = %d, want %d", creator.Balance, 100-claimed)
	}

	// Expired envelopes never accept claims
	if res := ClaimFrom("ch", "b", env.ChannelIndex); res.Status != ClaimExpired {
		t.Errorf("claim on expired = %s, want expired", res.Status)
	}
}

func TestListActiveNewestFirst(t *testing.T) {
	resetAll(t)
	utils.Add("creator", 100, "seed")

	first, _ := Create("creator", "ch", "first", 10, 2)
	memStore.mu.Lock()
	memStore.envelopes[first.ID].CreatedAt -= 10
	memStore.mu.Unlock()
	Create("creator", "ch", "second", 10, 2)
	Create("creator", "other", "elsewhere", 10, 2)

	envs, err := ListActive("ch")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(envs) != 2 || envs[0].Title != "second" || envs[1].Title != "first" {
		titles := make([]string, len(envs))
		for i, e := range envs {
			titles[i] = e.Title
		}
		t.Errorf("ListActive order = %v, want [second first]", titles)
	}
}
