package utils

import (
	"strings"
	"testing"
)

func TestSetNicknameFirstFree(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	fee, err := SetNickname("u1", "kasumi")
	if err != nil || fee != 0 {
		t.Fatalf("first set: fee %d err %v, want free", fee, err)
	}

	nick, err := GetNickname("u1")
	if err != nil || nick != "kasumi" {
		t.Errorf("GetNickname = %q, %v", nick, err)
	}
}

func TestSetNicknameChangeCosts(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	Add("u1", 100, "seed")
	SetNickname("u1", "first")

	fee, err := SetNickname("u1", "second")
	if err != nil || fee != NicknameChangeCost {
		t.Fatalf("change: fee %d err %v, want %d", fee, err, NicknameChangeCost)
	}

	user, _ := GetUser("u1")
	if user.Balance != 100-NicknameChangeCost {
		t.Errorf("balance = %d, want %d", user.Balance, 100-NicknameChangeCost)
	}

	// Old nickname is freed for other users
	if _, err := SetNickname("u2", "first"); err != nil {
		t.Errorf("freed nickname rejected: %v", err)
	}
}

func TestSetNicknameChangeNeedsFunds(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	SetNickname("u1", "first")
	if _, err := SetNickname("u1", "second"); err == nil {
		t.Error("broke user allowed to change nickname")
	}
}

func TestSetNicknameValidation(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	if _, err := SetNickname("u1", strings.Repeat("x", NicknameMaxLength+1)); err != ErrNicknameTooLong {
		t.Errorf("long name = %v, want ErrNicknameTooLong", err)
	}
	if _, err := SetNickname("u1", "a\nb"); err != ErrNicknameInvalid {
		t.Errorf("newline name = %v, want ErrNicknameInvalid", err)
	}
	if _, err := SetNickname("u1", ""); err != ErrNicknameInvalid {
		t.Errorf("empty name = %v, want ErrNicknameInvalid", err)
	}

	// Exactly at the limit is fine, runes not bytes
	if _, err := SetNickname("u1", strings.Repeat("星", NicknameMaxLength)); err != nil {
		t.Errorf("20-rune name rejected: %v", err)
	}
}

func TestSetNicknameDuplicate(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	SetNickname("u1", "taken")
	if _, err := SetNickname("u2", "taken"); err != ErrDuplicateNickname {
		t.Errorf("duplicate = %v, want ErrDuplicateNickname", err)
	}
}

func TestLookupByNickname(t *testing.T) {
	ResetMemLedger()
	ResetMemNicknames()

	SetNickname("u1", "kasumi")
	owner, err := LookupByNickname("kasumi")
	if err != nil || owner != "u1" {
		t.Errorf("LookupByNickname = %q, %v", owner, err)
	}
	if _, err := LookupByNickname("nobody"); err == nil {
		t.Error("lookup of unknown nickname succeeded")
	}
}
