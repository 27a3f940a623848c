package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Source pulls one PCM frame at a time from a capture device. Implementations
// must be safe for a single caller; the send pipeline owns exactly one reader.
type Source interface {
	NextFrame() (PCMFrame, error)
	Close() error
}

// Sink plays one decoded PCM frame. Implementations must be safe for a
// single caller.
type Sink interface {
	PlayFrame(PCMFrame) error
	Close() error
}

// MicSource captures from the default PortAudio input device, one
// FrameSamples-long blocking read at a time.
type MicSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMicSource opens the default input device. Returns ErrNoDevice wrapping
// the underlying error if no input device is available.
func NewMicSource() (*MicSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	buf := make([]int16, FrameSamples*Channels)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return &MicSource{stream: stream, buf: buf}, nil
}

func (m *MicSource) NextFrame() (PCMFrame, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	frame := make(PCMFrame, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

func (m *MicSource) Close() error {
	err := m.stream.Close()
	portaudio.Terminate()
	return err
}

// SpeakerSink plays frames to the default PortAudio output device.
type SpeakerSink struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewSpeakerSink opens the default output device. Returns ErrNoDevice
// wrapping the underlying error if no output device is available.
func NewSpeakerSink() (*SpeakerSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	buf := make([]int16, FrameSamples*Channels)
	stream, err := portaudio.OpenDefaultStream(0, Channels, float64(SampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return &SpeakerSink{stream: stream, buf: buf}, nil
}

func (s *SpeakerSink) PlayFrame(frame PCMFrame) error {
	n := copy(s.buf, frame)
	for i := n; i < len(s.buf); i++ {
		s.buf[i] = 0 // pad a short final frame with silence
	}
	return s.stream.Write()
}

func (s *SpeakerSink) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// SilentSource serves a fixed silent frame — used when no microphone is
// configured, the audio-path analogue of capture.StaticSource.
type SilentSource struct{}

func (SilentSource) NextFrame() (PCMFrame, error) { return make(PCMFrame, FrameSamples), nil }
func (SilentSource) Close() error                 { return nil }

// DiscardSink drops every frame — used when no speaker is configured, the
// audio-path analogue of a GUI that never calls ShowFrame.
type DiscardSink struct{}

func (DiscardSink) PlayFrame(PCMFrame) error { return nil }
func (DiscardSink) Close() error             { return nil }
