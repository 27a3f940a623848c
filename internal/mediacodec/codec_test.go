package mediacodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRoundTrip(t *testing.T) {
	d := Datagram{
		Seq:      42,
		SentTime: time.Unix(0, 1700000000123456000),
		Width:    640,
		Height:   480,
		FPS:      30,
		Payload:  []byte("hello world"),
	}
	got, ok := Decode(Encode(d))
	require.True(t, ok)
	require.Equal(t, d.Seq, got.Seq)
	require.Equal(t, d.Width, got.Width)
	require.Equal(t, d.Height, got.Height)
	require.Equal(t, d.FPS, got.FPS)
	require.Equal(t, d.Payload, got.Payload)
}

func TestRoundTripPayloadContainsHash(t *testing.T) {
	d := Datagram{Seq: 1, SentTime: time.Unix(1, 0), Width: 320, Height: 240, FPS: 15,
		Payload: []byte("jpeg#bytes#with#hashes\x00\xff")}
	got, ok := Decode(Encode(d))
	require.True(t, ok)
	require.Equal(t, d.Payload, got.Payload)
}

func TestDecodeMalformedDropped(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("1#2#3"),
		[]byte("abc#1#1x1#30#payload"),
		[]byte("1#abc#1x1#30#payload"),
		[]byte("1#2#notares#30#payload"),
		[]byte("1#2#1x1#notafloat#payload"),
	}
	for _, c := range cases {
		_, ok := Decode(c)
		require.False(t, ok, "expected decode failure for %q", c)
	}
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seq := rapid.Uint32().Draw(rt, "seq")
		w := rapid.IntRange(0, 4096).Draw(rt, "w")
		h := rapid.IntRange(0, 4096).Draw(rt, "h")
		fps := rapid.Float64Range(1, 120).Draw(rt, "fps")
		payload := rapid.SliceOf(rapid.Byte()).Draw(rt, "payload")

		d := Datagram{Seq: seq, SentTime: time.Now(), Width: w, Height: h, FPS: fps, Payload: payload}
		wire := Encode(d)
		require.LessOrEqual(rt, len(wire), MaxDatagramBytes+1024)

		got, ok := Decode(wire)
		require.True(rt, ok)
		require.Equal(rt, d.Seq, got.Seq)
		require.Equal(rt, d.Width, got.Width)
		require.Equal(rt, d.Height, got.Height)
		require.Equal(rt, d.Payload, got.Payload)
	})
}
