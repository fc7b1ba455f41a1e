package channels

import (
	"math/rand"
	"testing"
)

func TestAddAndListMembers(t *testing.T) {
	ResetMemChannels()

	AddMember("ch", "a", "")
	AddMember("ch", "b", "")
	AddMember("ch", "a", "") // duplicate join is a no-op

	members, err := GetChannelMembers("ch")
	if err != nil || len(members) != 2 {
		t.Fatalf("GetChannelMembers = %v, %v; want 2 members", members, err)
	}
}

func TestAddMemberRefreshesAvatar(t *testing.T) {
	ResetMemChannels()

	AddMember("ch", "a", "http://old")
	AddMember("ch", "a", "http://new")
	AddMember("ch", "a", "") // empty avatar keeps the cached one

	members, _ := GetChannelMembers("ch")
	if len(members) != 1 || members[0].AvatarURL != "http://new" {
		t.Errorf("roster = %+v, want cached avatar http://new", members)
	}
}

func TestRemoveMember(t *testing.T) {
	ResetMemChannels()

	AddMember("ch", "a", "")
	AddMember("ch", "b", "")
	RemoveMember("ch", "a")

	members, _ := GetChannelMembers("ch")
	if len(members) != 1 || members[0].UserID != "b" {
		t.Errorf("members after remove = %v, want [b]", members)
	}
}

func TestRemoveChannelDropsRoster(t *testing.T) {
	ResetMemChannels()

	AddMember("ch", "a", "")
	AddMember("ch", "b", "")
	RemoveChannel("ch")

	members, _ := GetChannelMembers("ch")
	if len(members) != 0 {
		t.Errorf("roster survived channel removal: %v", members)
	}
}

func TestGetMemberChannels(t *testing.T) {
	ResetMemChannels()

	AddMember("ch1", "a", "")
	AddMember("ch2", "a", "")
	AddMember("ch3", "b", "")

	chs, err := GetMemberChannels("a")
	if err != nil || len(chs) != 2 {
		t.Fatalf("GetMemberChannels = %v, %v; want 2", chs, err)
	}
}

func TestRandomOtherMember(t *testing.T) {
	ResetMemChannels()
	rng := rand.New(rand.NewSource(4))

	AddMember("ch", "me", "")
	if _, ok, _ := RandomOtherMember("ch", "me", rng); ok {
		t.Error("picked a member from a roster of one")
	}

	AddMember("ch", "other", "")
	picked, ok, err := RandomOtherMember("ch", "me", rng)
	if err != nil || !ok || picked.UserID != "other" {
		t.Errorf("RandomOtherMember = %+v, %v, %v; want other", picked, ok, err)
	}

	// Never picks the caller
	AddMember("ch", "third", "")
	for i := 0; i < 50; i++ {
		picked, _, _ := RandomOtherMember("ch", "me", rng)
		if picked.UserID == "me" {
			t.Fatal("picked the caller")
		}
	}
}
