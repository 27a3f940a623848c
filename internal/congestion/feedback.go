// Package congestion implements the congestion feedback loop (spec §4.7):
// the renderer samples jitter-buffer quality each tick and reacts by either
// enabling extreme compression locally (V0) or rate-limiting
// CALL_CONGESTED notices to the peer (V1+).
package congestion

import (
	"sync"
	"time"

	"videocall/internal/jitter"
)

// CongestedInterval bounds both how often we emit CALL_CONGESTED and how
// long a received CALL_CONGESTED keeps extreme_compression enabled.
const CongestedInterval = 30 * time.Second

// Sender is the minimal contract the feedback loop needs from the
// capture/send pipeline: a single knob for extreme compression.
type Sender interface {
	SetExtremeCompression(enabled bool)
}

// Feedback drives extreme_compression from both directions: our own
// observed quality (self-throttle, always available) and CALL_CONGESTED
// notices from the peer (only meaningful V1+).
type Feedback struct {
	sender   Sender
	emit     func() // emits CALL_CONGESTED <me> to the peer; never called under V0
	protocol string

	mu              sync.Mutex
	lastEmitted     time.Time
	peerCongestedAt time.Time
}

// New builds a Feedback loop. emit should send CALL_CONGESTED to the peer
// and may be nil when protocol is V0 (in which case the loop only ever
// toggles local extreme_compression from self-observed quality).
func New(sender Sender, protocol string, emit func()) *Feedback {
	return &Feedback{sender: sender, protocol: protocol, emit: emit}
}

// Tick is called once per renderer tick with the current jitter-buffer
// statistics (spec §4.7).
func (f *Feedback) Tick(quality jitter.Quality) {
	now := time.Now()

	if quality < jitter.Medium {
		switch f.protocol {
		case "V0":
			f.sender.SetExtremeCompression(true)
			return
		default:
			f.mu.Lock()
			allowed := f.lastEmitted.IsZero() || now.Sub(f.lastEmitted) >= CongestedInterval
			if allowed {
				f.lastEmitted = now
			}
			f.mu.Unlock()
			if allowed && f.emit != nil {
				f.emit()
			}
			// Under V1+, whether extreme_compression fires locally is
			// driven by OnPeerCongested (the remote peer's reaction to
			// our notice), not by our own quality directly.
			return
		}
	}

	// Quality recovered: clear extreme_compression unless a still-fresh
	// peer CALL_CONGESTED keeps it on.
	f.mu.Lock()
	peerStillCongested := !f.peerCongestedAt.IsZero() && now.Sub(f.peerCongestedAt) < CongestedInterval
	f.mu.Unlock()
	if !peerStillCongested {
		f.sender.SetExtremeCompression(false)
	}
}

// OnPeerCongested is invoked when a CALL_CONGESTED arrives from the peer:
// extreme_compression is held on for up to CongestedInterval after the
// most recent notice.
func (f *Feedback) OnPeerCongested() {
	f.mu.Lock()
	f.peerCongestedAt = time.Now()
	f.mu.Unlock()
	f.sender.SetExtremeCompression(true)
}
