package utils

import (
	"errors"
	"time"
)

var (
	// ErrTurnTimeout is delivered when the user does not answer in time.
	// Games must run their settlement path on it, not just return.
	ErrTurnTimeout = errors.New("turn timed out")
	// ErrSessionClosed is delivered when the session was cancelled while
	// waiting, e.g. during shutdown.
	ErrSessionClosed = errors.New("session closed")
)

// Wait blocks until the next message from the owning user in the owning
// channel arrives, the timeout expires, or the session is cancelled.
func (s *Session) Wait(timeout time.Duration) (InboundMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-timer.C:
		return InboundMessage{}, ErrTurnTimeout
	case <-s.closed:
		return InboundMessage{}, ErrSessionClosed
	}
}

// Ask emits a prompt and waits for the reply.
func (s *Session) Ask(sender Sender, prompt string, timeout time.Duration) (InboundMessage, error) {
	if err := sender.Send(s.ChannelID, prompt); err != nil {
		return InboundMessage{}, err
	}
	return s.Wait(timeout)
}
