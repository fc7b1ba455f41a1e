package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNicknameTooLong   = errors.New("nickname exceeds 20 characters")
	ErrNicknameInvalid   = errors.New("nickname contains a newline or is empty")
	ErrDuplicateNickname = errors.New("nickname already taken")
	ErrNicknameNotSet    = errors.New("nickname not set")
)

var memNicknames = struct {
	mu     sync.Mutex
	byUser map[string]string
	byNick map[string]string
}{byUser: make(map[string]string), byNick: make(map[string]string)}

// ResetMemNicknames clears the in-memory nickname store. Test helper.
func ResetMemNicknames() {
	memNicknames.mu.Lock()
	defer memNicknames.mu.Unlock()
	memNicknames.byUser = make(map[string]string)
	memNicknames.byNick = make(map[string]string)
}

func validateNickname(name string) error {
	if name == "" || strings.ContainsAny(name, "\n\r") {
		return ErrNicknameInvalid
	}
	if utf8.RuneCountInString(name) > NicknameMaxLength {
		return ErrNicknameTooLong
	}
	return nil
}

// SetNickname stores the user's nickname. The first set is free; every later
// change costs NicknameChangeCost shards, debited through the ledger. The
// returned amount is what was charged.
func SetNickname(userID, name string) (int64, error) {
	if err := validateNickname(name); err != nil {
		return 0, err
	}

	if owner, err := LookupByNickname(name); err == nil && owner != userID {
		return 0, ErrDuplicateNickname
	}

	current, err := GetNickname(userID)
	if err != nil && err != ErrNicknameNotSet {
		return 0, err
	}
	if current == name {
		return 0, nil
	}

	var fee int64
	if current != "" {
		fee = NicknameChangeCost
		user, err := GetUser(userID)
		if err != nil {
			return 0, err
		}
		if user.Balance < fee {
			return 0, fmt.Errorf("insufficient balance: need %d, have %d", fee, user.Balance)
		}
		if err := Cost(userID, fee, "change nickname"); err != nil {
			return 0, err
		}
	}

	if DB == nil {
		memNicknames.mu.Lock()
		defer memNicknames.mu.Unlock()
		if current != "" {
			delete(memNicknames.byNick, current)
		}
		memNicknames.byUser[userID] = name
		memNicknames.byNick[name] = userID
		return fee, nil
	}

	_, err = DB.Exec(context.Background(),
		"INSERT INTO nicknames (user_id, nickname) VALUES ($1, $2) ON CONFLICT (user_id) DO UPDATE SET nickname = EXCLUDED.nickname",
		userID, name,
	)
	if err != nil {
		return fee, fmt.Errorf("failed to store nickname: %w", err)
	}
	return fee, nil
}

// GetNickname returns the user's nickname or ErrNicknameNotSet.
func GetNickname(userID string) (string, error) {
	if DB == nil {
		memNicknames.mu.Lock()
		defer memNicknames.mu.Unlock()
		if nick, ok := memNicknames.byUser[userID]; ok {
			return nick, nil
		}
		return "", ErrNicknameNotSet
	}

	var nick string
	err := DB.QueryRow(context.Background(),
		"SELECT nickname FROM nicknames WHERE user_id = $1", userID,
	).Scan(&nick)
	if err == pgx.ErrNoRows {
		return "", ErrNicknameNotSet
	}
	if err != nil {
		return "", fmt.Errorf("failed to get nickname: %w", err)
	}
	return nick, nil
}

// LookupByNickname resolves a nickname to its owner, used by transfer.
func LookupByNickname(name string) (string, error) {
	if DB == nil {
		memNicknames.mu.Lock()
		defer memNicknames.mu.Unlock()
		if userID, ok := memNicknames.byNick[name]; ok {
			return userID, nil
		}
		return "", ErrNicknameNotSet
	}

	var userID string
	err := DB.QueryRow(context.Background(),
		"SELECT user_id FROM nicknames WHERE nickname = $1", name,
	).Scan(&userID)
	if err == pgx.ErrNoRows {
		return "", ErrNicknameNotSet
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up nickname: %w", err)
	}
	return userID, nil
}
