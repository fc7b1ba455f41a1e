package utils

import (
	"errors"
	"log"
	"sync"
	"time"
)

// InboundMessage is the normalized chat event the core consumes. IDs are
// opaque strings supplied by the transport.
type InboundMessage struct {
	Platform  string
	ChannelID string
	UserID    string
	MessageID string
	Text      string
	Timestamp time.Time
}

// Sender delivers outbound replies. The transport adapter implements it and
// attaches the passive reference.
type Sender interface {
	Send(channelID, content string) error
}

var (
	ErrAlreadyInGame = errors.New("user already has an active game")
	ErrShuttingDown  = errors.New("no new games accepted during shutdown")
)

// Session is one user's live game. Messages from the owning user in the
// owning channel are fanned into the inbox; the game goroutine consumes
// them through Wait/Ask.
type Session struct {
	UserID    string
	ChannelID string
	Bet       int64
	CreatedAt time.Time

	registry  *Registry
	inbox     chan InboundMessage
	closed    chan struct{}
	closeOnce sync.Once
}

// Close releases the session's inbox. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Registry enforces at most one active session per user for one game and
// routes in-game messages to their owner.
type Registry struct {
	game     string
	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool
}

// NewRegistry creates a registry for one game kind.
func NewRegistry(game string) *Registry {
	return &Registry{
		game:     game,
		sessions: make(map[string]*Session),
	}
}

// Game returns the game kind this registry serves.
func (r *Registry) Game() string {
	return r.game
}

// Start claims the user's game slot. The in-game check and the insert are a
// single critical section so a user can never hold two sessions.
func (r *Registry) Start(userID, channelID string, bet int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, ErrShuttingDown
	}
	if _, ok := r.sessions[userID]; ok {
		return nil, ErrAlreadyInGame
	}

	s := &Session{
		UserID:    userID,
		ChannelID: channelID,
		Bet:       bet,
		CreatedAt: time.Now(),
		registry:  r,
		inbox:     make(chan InboundMessage, 16),
		closed:    make(chan struct{}),
	}
	r.sessions[userID] = s
	return s, nil
}

// Finish releases the user's slot and closes the session.
func (r *Registry) Finish(s *Session) {
	r.mu.Lock()
	if r.sessions[s.UserID] == s {
		delete(r.sessions, s.UserID)
	}
	r.mu.Unlock()
	s.Close()
}

// InGame reports whether the user currently holds a session.
func (r *Registry) InGame(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// Deliver routes a message into the owning session. Returns true when the
// message was consumed by a session and should not be parsed as a command.
func (r *Registry) Deliver(msg InboundMessage) bool {
	r.mu.Lock()
	s, ok := r.sessions[msg.UserID]
	r.mu.Unlock()

	if !ok || s.ChannelID != msg.ChannelID {
		return false
	}

	select {
	case s.inbox <- msg:
	default:
		// Inbox full: the session is not keeping up, drop rather than block
		// the event loop.
		log.Printf("[%s] dropped message for busy session of %s", r.game, msg.UserID)
	}
	return true
}

// BeginShutdown stops accepting new sessions and returns the active ones so
// the game can refund each stake before the process exits.
func (r *Registry) BeginShutdown() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdown = true
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	return active
}

// ActiveCount returns the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
