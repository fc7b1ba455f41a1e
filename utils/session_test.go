package utils

import (
	"testing"
	"time"
)

func TestRegistrySingleSessionPerUser(t *testing.T) {
	r := NewRegistry("test")

	s, err := r.Start("u1", "ch", 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := r.Start("u1", "ch", 0); err != ErrAlreadyInGame {
		t.Errorf("second Start = %v, want ErrAlreadyInGame", err)
	}

	r.Finish(s)
	if r.InGame("u1") {
		t.Error("user still in game after Finish")
	}
	if _, err := r.Start("u1", "ch", 0); err != nil {
		t.Errorf("Start after Finish failed: %v", err)
	}
}

func TestDeliverRoutesToOwner(t *testing.T) {
	r := NewRegistry("test")
	s, _ := r.Start("u1", "ch", 0)
	defer r.Finish(s)

	if !r.Deliver(InboundMessage{UserID: "u1", ChannelID: "ch", Text: "h"}) {
		t.Error("message for the session owner not consumed")
	}
	if r.Deliver(InboundMessage{UserID: "u2", ChannelID: "ch", Text: "h"}) {
		t.Error("message from another user consumed")
	}
	if r.Deliver(InboundMessage{UserID: "u1", ChannelID: "other", Text: "h"}) {
		t.Error("message from another channel consumed")
	}

	msg, err := s.Wait(time.Second)
	if err != nil || msg.Text != "h" {
		t.Errorf("Wait = %+v, %v", msg, err)
	}
}

func TestWaitTimeout(t *testing.T) {
	r := NewRegistry("test")
	s, _ := r.Start("u1", "ch", 0)
	defer r.Finish(s)

	if _, err := s.Wait(10 * time.Millisecond); err != ErrTurnTimeout {
		t.Errorf("Wait = %v, want ErrTurnTimeout", err)
	}
}

func TestWaitCancelledOnClose(t *testing.T) {
	r := NewRegistry("test")
	s, _ := r.Start("u1", "ch", 0)

	done := make(chan error, 1)
	go func() {
		_, err := s.Wait(time.Minute)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if err != ErrSessionClosed {
			t.Errorf("Wait = %v, want ErrSessionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}
	r.Finish(s)
}

func TestBeginShutdownBlocksNewStarts(t *testing.T) {
	r := NewRegistry("test")
	s, _ := r.Start("u1", "ch", 25)

	active := r.BeginShutdown()
	if len(active) != 1 || active[0] != s {
		t.Fatalf("BeginShutdown returned %d sessions, want the active one", len(active))
	}
	if _, err := r.Start("u2", "ch", 0); err != ErrShuttingDown {
		t.Errorf("Start during shutdown = %v, want ErrShuttingDown", err)
	}
}
