package utils

import (
	"log"
	"sync"
	"time"
)

type passiveRecord struct {
	messageID string
	timestamp time.Time
	seq       int
}

// PassiveCorrelator holds recent inbound message IDs per channel and lends
// them out as reply references. A record is eligible while it is younger
// than five minutes and its prior reuse count is at most five.
type PassiveCorrelator struct {
	mu      sync.Mutex
	records map[string][]*passiveRecord
	ticker  *time.Ticker
	done    chan bool
}

// NewPassiveCorrelator creates an empty correlator.
func NewPassiveCorrelator() *PassiveCorrelator {
	return &PassiveCorrelator{
		records: make(map[string][]*passiveRecord),
		done:    make(chan bool),
	}
}

// Record registers an inbound message for later reuse as a reply reference.
func (pc *PassiveCorrelator) Record(channelID, messageID string, ts time.Time) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.records[channelID] = append(pc.records[channelID], &passiveRecord{
		messageID: messageID,
		timestamp: ts,
	})
}

// Acquire returns the most recent eligible reference for the channel and
// bumps its reuse counter. The scan and the increment are one critical
// section so concurrent replies never see the same seq.
func (pc *PassiveCorrelator) Acquire(channelID string, now time.Time) (string, int, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	recs := pc.records[channelID]
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if now.Sub(r.timestamp) > PassiveMaxAge {
			break
		}
		if r.seq > PassiveMaxReuse {
			continue
		}
		r.seq++
		return r.messageID, r.seq, true
	}
	return "", 0, false
}

// StartSweeper launches the minute sweep that drops expired records.
func (pc *PassiveCorrelator) StartSweeper() {
	pc.ticker = time.NewTicker(PassiveSweep)
	go func() {
		for {
			select {
			case <-pc.ticker.C:
				pc.sweep(time.Now())
			case <-pc.done:
				return
			}
		}
	}()
}

// Close stops the sweeper.
func (pc *PassiveCorrelator) Close() {
	if pc.ticker != nil {
		pc.ticker.Stop()
		pc.done <- true
	}
}

func (pc *PassiveCorrelator) sweep(now time.Time) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	dropped := 0
	for channelID, recs := range pc.records {
		kept := recs[:0]
		for _, r := range recs {
			if now.Sub(r.timestamp) <= PassiveMaxAge && r.seq <= PassiveMaxReuse {
				kept = append(kept, r)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(pc.records, channelID)
		} else {
			pc.records[channelID] = kept
		}
	}
	if dropped > 0 {
		log.Printf("Passive sweep dropped %d stale records", dropped)
	}
}
