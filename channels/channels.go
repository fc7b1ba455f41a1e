package channels

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"kasumi-go/utils"
)

// Membership tracks which users are reachable in which channels so features
// like random gifting and departure cleanup have a roster to consult. The
// avatar seen on the latest message or join event is cached alongside.

// Member is one roster entry.
type Member struct {
	UserID    string
	AvatarURL string
	JoinedAt  int64
}

var memChannels = struct {
	mu      sync.Mutex
	members map[string]map[string]*Member // channelID -> userID -> entry
}{members: make(map[string]map[string]*Member)}

// ResetMemChannels clears the in-memory roster. Test helper.
func ResetMemChannels() {
	memChannels.mu.Lock()
	defer memChannels.mu.Unlock()
	memChannels.members = make(map[string]map[string]*Member)
}

// AddMember records a user in a channel and refreshes the cached avatar.
// Re-adding keeps the original join time.
func AddMember(channelID, userID, avatarURL string) error {
	now := time.Now().Unix()

	if utils.DB == nil {
		memChannels.mu.Lock()
		defer memChannels.mu.Unlock()
		roster, ok := memChannels.members[channelID]
		if !ok {
			roster = make(map[string]*Member)
			memChannels.members[channelID] = roster
		}
		if m, dup := roster[userID]; dup {
			if avatarURL != "" {
				m.AvatarURL = avatarURL
			}
		} else {
			roster[userID] = &Member{UserID: userID, AvatarURL: avatarURL, JoinedAt: now}
		}
		return nil
	}

	_, err := utils.DB.Exec(context.Background(),
		`INSERT INTO channel_members (channel_id, user_id, avatar_url, joined_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel_id, user_id) DO UPDATE
		 SET avatar_url = CASE WHEN EXCLUDED.avatar_url <> '' THEN EXCLUDED.avatar_url ELSE channel_members.avatar_url END`,
		channelID, userID, avatarURL, now,
	)
	if err != nil {
		return fmt.Errorf("failed to add channel member: %w", err)
	}
	return nil
}

// RemoveMember records a user leaving a channel.
func RemoveMember(channelID, userID string) error {
	if utils.DB == nil {
		memChannels.mu.Lock()
		defer memChannels.mu.Unlock()
		if roster, ok := memChannels.members[channelID]; ok {
			delete(roster, userID)
			if len(roster) == 0 {
				delete(memChannels.members, channelID)
			}
		}
		return nil
	}

	_, err := utils.DB.Exec(context.Background(),
		"DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2",
		channelID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove channel member: %w", err)
	}
	return nil
}

// RemoveChannel drops a channel's whole roster, for when the bot loses
// access to it.
func RemoveChannel(channelID string) error {
	if utils.DB == nil {
		memChannels.mu.Lock()
		defer memChannels.mu.Unlock()
		delete(memChannels.members, channelID)
		return nil
	}

	_, err := utils.DB.Exec(context.Background(),
		"DELETE FROM channel_members WHERE channel_id = $1", channelID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove channel: %w", err)
	}
	return nil
}

// GetChannelMembers returns the channel's roster sorted by join time.
func GetChannelMembers(channelID string) ([]Member, error) {
	if utils.DB == nil {
		memChannels.mu.Lock()
		roster := memChannels.members[channelID]
		members := make([]Member, 0, len(roster))
		for _, m := range roster {
			members = append(members, *m)
		}
		memChannels.mu.Unlock()
		sort.Slice(members, func(i, j int) bool {
			if members[i].JoinedAt != members[j].JoinedAt {
				return members[i].JoinedAt < members[j].JoinedAt
			}
			return members[i].UserID < members[j].UserID
		})
		return members, nil
	}

	rows, err := utils.DB.Query(context.Background(),
		"SELECT user_id, avatar_url, joined_at FROM channel_members WHERE channel_id = $1 ORDER BY joined_at ASC, user_id ASC",
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.AvatarURL, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, nil
}

// GetMemberChannels returns every channel the user is known to be in.
func GetMemberChannels(userID string) ([]string, error) {
	if utils.DB == nil {
		memChannels.mu.Lock()
		var ids []string
		for channelID, roster := range memChannels.members {
			if _, ok := roster[userID]; ok {
				ids = append(ids, channelID)
			}
		}
		memChannels.mu.Unlock()
		sort.Strings(ids)
		return ids, nil
	}

	rows, err := utils.DB.Query(context.Background(),
		"SELECT channel_id FROM channel_members WHERE user_id = $1 ORDER BY channel_id ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list member channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RandomOtherMember picks a uniformly random channel member other than the
// given user. Returns false when nobody else is on the roster.
func RandomOtherMember(channelID, userID string, rng *rand.Rand) (*Member, bool, error) {
	members, err := GetChannelMembers(channelID)
	if err != nil {
		return nil, false, err
	}
	others := members[:0:0]
	for _, m := range members {
		if m.UserID != userID {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return nil, false, nil
	}
	picked := others[rng.Intn(len(others))]
	return &picked, true, nil
}
