package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"videocall/internal/mediacodec"
)

func dg(seq uint32, fps float64, payload string) mediacodec.Datagram {
	return mediacodec.Datagram{
		Seq:      seq,
		SentTime: time.Now(),
		Width:    640, Height: 480,
		FPS:     fps,
		Payload: []byte(payload),
	}
}

// consumeAllReady consumes up to max payloads, stopping at the first Consume
// that returns nothing; it does not wait out the time_between_frames pacing.
func consumeAllReady(t *testing.T, b *Buffer, max int) [][]byte {
	t.Helper()
	var out [][]byte
	for i := 0; i < max; i++ {
		p, ok := b.Consume()
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}

func TestReorderScenario(t *testing.T) {
	b := New(nil)
	seqs := []uint32{1, 3, 2, 4, 6, 5}
	for _, s := range seqs {
		ok := b.Insert(dg(s, 30, "p"))
		require.True(t, ok)
		time.Sleep(33 * time.Millisecond)
	}
	var out []uint32
	for i := 0; i < 6; i++ {
		_, ok := b.Consume()
		if !ok {
			time.Sleep(40 * time.Millisecond)
			_, ok = b.Consume()
		}
		if ok {
			seq, hasConsumed := b.LastConsumedSeq()
			require.True(t, hasConsumed)
			out = append(out, seq)
		}
		time.Sleep(33 * time.Millisecond)
	}
	require.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, out)
	_, lost, _, _ := b.Statistics()
	require.Equal(t, uint64(0), lost)
}

func TestLossScenario(t *testing.T) {
	b := New(nil)
	for _, s := range []uint32{1, 2, 4, 5} {
		require.True(t, b.Insert(dg(s, 30, "p")))
		time.Sleep(33 * time.Millisecond)
	}
	var consumed []uint32
	for len(consumed) < 4 {
		_, ok := b.Consume()
		if ok {
			seq, _ := b.LastConsumedSeq()
			consumed = append(consumed, seq)
		}
		time.Sleep(35 * time.Millisecond)
	}
	require.Equal(t, []uint32{1, 2, 4, 5}, consumed)
	_, lost, _, _ := b.Statistics()
	require.Equal(t, uint64(1), lost)
}

func TestLateDrop(t *testing.T) {
	b := New(nil)
	for s := uint32(1); s <= 10; s++ {
		require.True(t, b.Insert(dg(s, 30, "p")))
		time.Sleep(2 * time.Millisecond)
	}
	mustConsumeUpTo(t, b, 10)
	before := b.Len()
	ok := b.Insert(dg(4, 30, "late"))
	require.False(t, ok)
	require.Equal(t, before, b.Len())
}

func mustConsumeUpTo(t *testing.T, b *Buffer, target uint32) []uint32 {
	t.Helper()
	var out []uint32
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, ok := b.Consume()
		if ok {
			seq, _ := b.LastConsumedSeq()
			out = append(out, seq)
			if seq == target {
				return out
			}
		}
		time.Sleep(time.Millisecond)
	}
	return out
}

func TestDuplicateRejectedAtInsert(t *testing.T) {
	b := New(nil)
	require.True(t, b.Insert(dg(1, 30, "a")))
	require.True(t, b.Insert(dg(3, 30, "c")))
	require.False(t, b.Insert(dg(3, 30, "dup")))
}

func TestOnPlayableFiresOnceAtWarmup(t *testing.T) {
	var fired int
	b := New(func() { fired++ })
	for s := uint32(1); s <= MinInitialFrames+2; s++ {
		b.Insert(dg(s, 30, "p"))
	}
	require.Equal(t, 1, fired)
}

// --- Property-based tests (spec §8 P1-P3) ---

func TestPropertyMonotonicConsumeAndLastSeq(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := New(nil)
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		seqs := rapid.Permutation(seqRange(uint32(n))).Draw(rt, "seqs")

		var lastConsumed uint32
		var hasConsumed bool
		var lastSeqOut uint32

		for _, s := range seqs {
			b.Insert(dg(s, 1000, "p")) // high fps => negligible pacing wait
			if p, ok := b.Consume(); ok {
				cur, _ := b.LastConsumedSeq()
				if hasConsumed {
					require.Greater(rt, cur, lastSeqOut, "P1: consumed seq must strictly increase")
					require.GreaterOrEqual(rt, cur, lastConsumed, "P2: last_consumed_seq monotonic")
				}
				lastSeqOut = cur
				lastConsumed = cur
				hasConsumed = true
				_ = p
			}
		}
	})
}

func seqRange(n uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i) + 1
	}
	return out
}

func TestPropertyLateRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := New(nil)
		for s := uint32(1); s <= MinInitialFrames; s++ {
			b.Insert(dg(s, 1000, "p"))
		}
		// Force consumption of the first MinInitialFrames.
		deadline := time.Now().Add(500 * time.Millisecond)
		for b.Len() > 0 && time.Now().Before(deadline) {
			if _, ok := b.Consume(); !ok {
				time.Sleep(time.Millisecond)
			}
		}
		last, hasConsumed := b.LastConsumedSeq()
		if !hasConsumed {
			return
		}
		lateSeq := rapid.Uint32Range(0, last).Draw(rt, "lateSeq")
		ok := b.Insert(dg(lateSeq, 1000, "late"))
		require.False(rt, ok, "P3: seq <= last_consumed_seq must be rejected")
	})
}
