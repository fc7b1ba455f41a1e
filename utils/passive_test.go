package utils

import (
	"testing"
	"time"
)

func TestPassiveAcquireNewestFirst(t *testing.T) {
	pc := NewPassiveCorrelator()
	now := time.Now()

	pc.Record("ch", "m1", now.Add(-time.Minute))
	pc.Record("ch", "m2", now.Add(-time.Second))

	id, seq, ok := pc.Acquire("ch", now)
	if !ok || id != "m2" || seq != 1 {
		t.Errorf("Acquire = %q seq %d ok %v, want m2 seq 1", id, seq, ok)
	}
}

func TestPassiveSeqIncrements(t *testing.T) {
	pc := NewPassiveCorrelator()
	now := time.Now()
	pc.Record("ch", "m1", now)

	for want := 1; want <= PassiveMaxReuse+1; want++ {
		_, seq, ok := pc.Acquire("ch", now)
		if !ok || seq != want {
			t.Fatalf("acquire %d: seq %d ok %v", want, seq, ok)
		}
	}

	// Prior seq now exceeds the reuse cap
	if _, _, ok := pc.Acquire("ch", now); ok {
		t.Error("record still eligible past the reuse cap")
	}
}

func TestPassiveAgeLimit(t *testing.T) {
	pc := NewPassiveCorrelator()
	now := time.Now()
	pc.Record("ch", "old", now.Add(-PassiveMaxAge-time.Second))

	if _, _, ok := pc.Acquire("ch", now); ok {
		t.Error("expired record still eligible")
	}
}

func TestPassiveSweepDropsStale(t *testing.T) {
	pc := NewPassiveCorrelator()
	now := time.Now()
	pc.Record("ch", "old", now.Add(-PassiveMaxAge-time.Second))
	pc.Record("ch", "fresh", now)

	pc.sweep(now)

	id, _, ok := pc.Acquire("ch", now)
	if !ok || id != "fresh" {
		t.Errorf("after sweep Acquire = %q ok %v, want fresh", id, ok)
	}
}

func TestPassiveChannelsAreIndependent(t *testing.T) {
	pc := NewPassiveCorrelator()
	now := time.Now()
	pc.Record("a", "m1", now)

	if _, _, ok := pc.Acquire("b", now); ok {
		t.Error("acquired a reference from the wrong channel")
	}
}
