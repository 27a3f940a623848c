// Package jitter implements the jitter buffer (spec §4.2): ordered
// reassembly of a single peer's media datagrams, late-drop, pacing, and a
// coarse quality score that drives congestion feedback (§4.7).
//
// Unlike a multi-sender mixer, a call session has exactly one remote peer,
// so the buffer holds a single ordered run of datagrams rather than a
// per-sender ring. The optional audio path (internal/audiopipeline) does not
// use a jitter buffer; it plays audio datagrams as they arrive.
package jitter

import (
	"sync"
	"time"

	"videocall/internal/mediacodec"
)

// Quality is the coarse signal the congestion feedback loop reacts to.
type Quality int

const (
	SuperLow Quality = iota
	Low
	Medium
	High
)

func (q Quality) String() string {
	switch q {
	case SuperLow:
		return "SUPER_LOW"
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Tuning constants (spec §4.2 defaults).
const (
	U               = 0.01 // EWMA weight
	MinInitialFrames = 5
	BufferMax        = 5
	ConsumeSpeedup   = 1.5
)

// entry is a buffered datagram augmented with arrival time and delay.
type entry struct {
	dg     mediacodec.Datagram
	arrival time.Time
	delay   float64 // seconds, arrival - sent
}

// Buffer is the jitter buffer. All exported methods are safe for concurrent
// use; a single internal mutex guards every mutator and reader (spec §5).
type Buffer struct {
	mu sync.Mutex

	items []entry // strictly sorted by Seq (invariant I5)

	hasConsumed     bool
	lastConsumedSeq uint32
	lastConsumedTs  time.Time

	numHoles     int
	packagesLost uint64

	avgDelay float64
	jitterMs float64 // stored in seconds internally despite the field name; see Statistics
	timeBetweenFrames float64 // seconds; 0 until the first Insert

	initialFramesReceived int
	quality               Quality

	onPlayable func() // fired once, when initialFramesReceived reaches MinInitialFrames
	playableFired bool
}

// New returns an empty jitter buffer. onPlayable, if non-nil, is invoked
// exactly once — the first time the buffer has buffered MinInitialFrames
// frames — so the caller can start the display pacer (spec §4.3).
func New(onPlayable func()) *Buffer {
	return &Buffer{onPlayable: onPlayable, quality: SuperLow}
}

// Insert stamps arrival time, computes delay, and inserts dg in sorted
// position, maintaining hole/loss/quality accounting. Returns false if dg
// is late (seq <= last consumed) or a duplicate of an already-buffered
// sequence — ejecting duplicates at Insert is what keeps property P5
// (packages_lost + consumed == total observed range) true; see spec §9.
func (b *Buffer) Insert(dg mediacodec.Datagram) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	delay := now.Sub(dg.SentTime).Seconds()

	if b.hasConsumed && dg.Seq <= b.lastConsumedSeq {
		return false
	}

	if dg.FPS > 0 {
		target := 1.0 / dg.FPS
		if b.timeBetweenFrames == 0 {
			b.timeBetweenFrames = target
		} else {
			b.timeBetweenFrames = (1-U)*b.timeBetweenFrames + U*target
		}
	}
	if len(b.items) >= BufferMax {
		b.timeBetweenFrames /= ConsumeSpeedup
	}

	b.initialFramesReceived++
	if b.initialFramesReceived == 1 {
		b.avgDelay = delay
	}
	if b.initialFramesReceived == MinInitialFrames && !b.playableFired {
		b.playableFired = true
		if b.onPlayable != nil {
			b.onPlayable()
		}
	}

	if !b.insertSorted(entry{dg: dg, arrival: now, delay: delay}) {
		return false // duplicate sequence already buffered
	}

	// Jacobson-style EWMA: the jitter sample uses the avg_delay as it stood
	// before this datagram's delay is folded in.
	diff := delay - b.avgDelay
	if diff < 0 {
		diff = -diff
	}
	b.jitterMs = (1-U)*b.jitterMs + U*diff
	b.avgDelay = (1-U)*b.avgDelay + U*delay

	b.recomputeQuality()
	return true
}

// insertSorted places e into b.items keeping it sorted by sequence,
// performing the hole-count bookkeeping from spec §4.2 step 5. Returns
// false without modifying state if e.dg.Seq already has a buffered entry.
func (b *Buffer) insertSorted(e entry) bool {
	n := len(b.items)
	if n == 0 {
		b.items = append(b.items, e)
		return true
	}

	// Binary search for insertion point.
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if b.items[mid].dg.Seq < e.dg.Seq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n && b.items[lo].dg.Seq == e.dg.Seq {
		return false // duplicate
	}

	switch {
	case lo == 0:
		// New head.
		b.numHoles += int(b.items[0].dg.Seq - e.dg.Seq - 1)
	case lo == n:
		// New tail.
		b.numHoles += int(e.dg.Seq - b.items[n-1].dg.Seq - 1)
	default:
		// Interior insertion: fills a previously counted hole.
		b.numHoles--
	}

	b.items = append(b.items, entry{})
	copy(b.items[lo+1:], b.items[lo:n])
	b.items[lo] = e
	return true
}

// recomputeQuality derives Quality from num_holes, packages_lost, and the
// delay penalty (spec §4.2 step 7).
func (b *Buffer) recomputeQuality() {
	if len(b.items) == 0 {
		b.quality = SuperLow
		return
	}
	lastSeq := b.items[len(b.items)-1].dg.Seq
	score := 5*float64(b.numHoles) + 2*float64(b.packagesLost)/float64(lastSeq+1)
	switch {
	case b.avgDelay >= 0.300:
		score += 30
	case b.avgDelay > 0.150:
		score += 10
	}
	switch {
	case score < 5:
		b.quality = High
	case score < 20:
		b.quality = Medium
	default:
		b.quality = Low
	}
}

// Consume pops the next in-order payload, or returns ok=false if nothing
// is ready yet: pacing not elapsed, warm-up incomplete, or buffer empty.
func (b *Buffer) Consume() (payload []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if !b.lastConsumedTs.IsZero() && now.Sub(b.lastConsumedTs).Seconds() < b.timeBetweenFrames {
		return nil, false
	}
	if b.initialFramesReceived < MinInitialFrames || len(b.items) == 0 {
		return nil, false
	}

	d := b.items[0]
	b.items = b.items[1:]

	if b.hasConsumed {
		b.packagesLost += uint64(d.dg.Seq - b.lastConsumedSeq - 1)
	}
	b.hasConsumed = true
	b.lastConsumedSeq = d.dg.Seq
	b.lastConsumedTs = now

	if len(b.items) > 0 {
		b.numHoles -= int(b.items[0].dg.Seq - d.dg.Seq - 1)
	}

	b.recomputeQuality()
	return d.dg.Payload, true
}

// Statistics returns the current quality, lost-packet count, smoothed
// average delay, and smoothed jitter (all delay/jitter values in seconds).
func (b *Buffer) Statistics() (quality Quality, packagesLost uint64, avgDelay, jitter float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quality, b.packagesLost, b.avgDelay, b.jitterMs
}

// LastConsumedSeq returns the highest sequence ever popped and whether any
// datagram has been consumed yet (spec invariant I6).
func (b *Buffer) LastConsumedSeq() (seq uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastConsumedSeq, b.hasConsumed
}

// Len reports the number of datagrams currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush clears all buffered state. Called on local call cleanup (spec §4.6).
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.hasConsumed = false
	b.lastConsumedSeq = 0
	b.lastConsumedTs = time.Time{}
	b.numHoles = 0
	b.packagesLost = 0
	b.avgDelay = 0
	b.jitterMs = 0
	b.timeBetweenFrames = 0
	b.initialFramesReceived = 0
	b.quality = SuperLow
	b.playableFired = false
}

// TimeBetweenFrames returns the current EWMA of 1/fps, in seconds. Used by
// the display pacer to pick its tick interval.
func (b *Buffer) TimeBetweenFrames() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timeBetweenFrames <= 0 {
		return 33 * time.Millisecond
	}
	return time.Duration(b.timeBetweenFrames * float64(time.Second))
}
