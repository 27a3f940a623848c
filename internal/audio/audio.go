// Package audio implements the optional audio path (SPEC_FULL.md §3, §4.4):
// capture and playback via PortAudio, Opus encode/decode, and the
// AudioDatagram wire framing — the same mediacodec.Datagram shape as video,
// distinguished only by which UDP flow it arrives on.
package audio

import (
	"errors"

	"gopkg.in/hraban/opus.v2"
)

// SampleRate and Channels fix the audio format this package speaks: Opus
// at 48 kHz mono, the rate Opus itself is optimized for.
const (
	SampleRate  = 48000
	Channels    = 1
	FrameMillis = 20
	// FrameSamples is the number of samples per channel in one 20 ms frame.
	FrameSamples = SampleRate * FrameMillis / 1000

	// FPS is the datagram-wire fps field for an audio flow (spec's
	// AudioDatagram, §3): one Opus frame every 20 ms.
	FPS = 1000.0 / FrameMillis

	// Resolution is the fixed "WxH" wire field for an audio datagram —
	// audio has no resolution, so the field is a sentinel.
	Resolution = "0x0"
)

// PCMFrame is one frame of signed 16-bit mono samples, FrameSamples long.
type PCMFrame []int16

// ErrNoDevice mirrors internal/capture.ErrNoDevice: returned when no audio
// hardware is available in this build/environment.
var ErrNoDevice = errors.New("audio: device not available in this build")

// Encoder wraps an Opus encoder configured for voice.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder builds an Opus encoder tuned for voice at SampleRate/Channels.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses one PCM frame into an Opus packet.
func (e *Encoder) Encode(pcm PCMFrame) ([]byte, error) {
	out := make([]byte, 4000) // generous upper bound for a 20ms voice frame
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Decoder wraps an Opus decoder configured for SampleRate/Channels.
type Decoder struct {
	dec *opus.Decoder
}

// NewDecoder builds an Opus decoder matching NewEncoder's format.
func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	return &Decoder{dec: dec}, nil
}

// Decode expands one Opus packet back into a PCM frame.
func (d *Decoder) Decode(packet []byte) (PCMFrame, error) {
	pcm := make(PCMFrame, FrameSamples)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n], nil
}
