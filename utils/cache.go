package utils

import (
	"log"
	"sync"
	"time"
)

// CacheEntry represents a cached user data entry
type CacheEntry struct {
	User      *User
	ExpiresAt time.Time
}

// UserCache keeps recently read ledger rows in memory so balance lookups on
// the hot command path skip the database.
type UserCache struct {
	data          map[string]*CacheEntry
	mutex         sync.RWMutex
	ttl           time.Duration
	cleanupTicker *time.Ticker
	done          chan bool
}

// Global cache instance
var Cache *UserCache

// InitializeCache sets up the user cache system
func InitializeCache(ttl time.Duration) {
	Cache = &UserCache{
		data: make(map[string]*CacheEntry),
		ttl:  ttl,
		done: make(chan bool),
	}

	Cache.cleanupTicker = time.NewTicker(5 * time.Minute)
	go Cache.cleanupRoutine()
}

// CloseCache stops the cache cleanup routine
func CloseCache() {
	if Cache != nil && Cache.cleanupTicker != nil {
		Cache.cleanupTicker.Stop()
		Cache.done <- true
	}
}

// Get retrieves a user from cache
func (uc *UserCache) Get(userID string) (*User, bool) {
	uc.mutex.RLock()
	entry, exists := uc.data[userID]
	uc.mutex.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		uc.mutex.Lock()
		delete(uc.data, userID)
		uc.mutex.Unlock()
		return nil, false
	}

	userCopy := *entry.User
	return &userCopy, true
}

// Set stores a user in cache
func (uc *UserCache) Set(userID string, user *User) {
	userCopy := *user
	uc.mutex.Lock()
	uc.data[userID] = &CacheEntry{User: &userCopy, ExpiresAt: time.Now().Add(uc.ttl)}
	uc.mutex.Unlock()
}

// Delete removes a user from cache
func (uc *UserCache) Delete(userID string) {
	uc.mutex.Lock()
	delete(uc.data, userID)
	uc.mutex.Unlock()
}

// Size returns the number of entries in cache
func (uc *UserCache) Size() int {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return len(uc.data)
}

// cleanupRoutine removes expired entries periodically
func (uc *UserCache) cleanupRoutine() {
	for {
		select {
		case <-uc.cleanupTicker.C:
			uc.cleanup()
		case <-uc.done:
			return
		}
	}
}

func (uc *UserCache) cleanup() {
	now := time.Now()
	expiredKeys := make([]string, 0)

	uc.mutex.RLock()
	for userID, entry := range uc.data {
		if now.After(entry.ExpiresAt) {
			expiredKeys = append(expiredKeys, userID)
		}
	}
	uc.mutex.RUnlock()

	if len(expiredKeys) > 0 {
		uc.mutex.Lock()
		for _, userID := range expiredKeys {
			delete(uc.data, userID)
		}
		uc.mutex.Unlock()
		log.Printf("Cleaned up %d expired cache entries. Cache size: %d", len(expiredKeys), uc.Size())
	}
}

// GetCachedUser retrieves user data from cache or the ledger
func GetCachedUser(userID string) (*User, error) {
	if Cache != nil {
		if user, found := Cache.Get(userID); found {
			return user, nil
		}
	}

	user, err := GetUser(userID)
	if err != nil {
		return nil, err
	}

	if Cache != nil {
		Cache.Set(userID, user)
	}
	return user, nil
}

// InvalidateUserCache removes a user from cache after a balance mutation
func InvalidateUserCache(userID string) {
	if Cache != nil {
		Cache.Delete(userID)
	}
}
