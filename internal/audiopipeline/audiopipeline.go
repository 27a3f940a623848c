// Package audiopipeline implements the optional audio capture/send and
// receive path (SPEC_FULL.md §3, §4.4): the same pull-encode-gate-transmit
// and read-filter-decode-play shapes as internal/sendpipeline and
// internal/recvpipeline, specialized for Opus audio frames carried on a
// dedicated UDP flow — the AudioDatagram shares mediacodec's wire format
// with video and is told apart purely by which flow it arrives on.
package audiopipeline

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"videocall/internal/audio"
	"videocall/internal/mediacodec"
)

// audioPortOffset is added to a peer's negotiated video datagram port to
// derive its audio datagram port. Both sides already learn each other's
// video DatagramPort during call setup (spec §4.6's CALLING/CALL_ACCEPTED);
// deriving the audio port from it avoids adding a second port field to the
// wire protocol for a path the core spec doesn't require.
const audioPortOffset = 1

// SessionView is the minimal contract the audio pipeline needs from a call
// session: whether media is currently allowed, and the peer's negotiated
// video datagram address (audio address is derived from it).
type SessionView interface {
	MediaAllowed() bool
	RemoteDatagramAddr() (*net.UDPAddr, bool)
}

// Logger is the minimal structured-logging contract, satisfied by
// internal/logging.Logger.
type Logger interface {
	Warn(msg string, kv ...any)
}

// RemoteAudioAddr derives the peer's audio datagram address from its
// negotiated video datagram address, or ok=false when no call is active.
func RemoteAudioAddr(session SessionView) (*net.UDPAddr, bool) {
	addr, ok := session.RemoteDatagramAddr()
	if !ok {
		return nil, false
	}
	return &net.UDPAddr{IP: addr.IP, Port: addr.Port + audioPortOffset}, true
}

// SendPipeline captures PCM frames, encodes them with Opus, and transmits
// one AudioDatagram every audio.FrameMillis while MediaAllowed holds.
type SendPipeline struct {
	session SessionView
	src     audio.Source
	enc     *audio.Encoder
	conn    *net.UDPConn
	log     Logger

	seq atomic.Uint32
}

// New builds a SendPipeline that captures from src and writes to conn.
func New(session SessionView, src audio.Source, enc *audio.Encoder, conn *net.UDPConn, log Logger) *SendPipeline {
	return &SendPipeline{session: session, src: src, enc: enc, conn: conn, log: log}
}

// Run captures and sends at the fixed Opus frame cadence until ctx is done.
func (p *SendPipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(audio.FrameMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := p.src.NextFrame()
			if err != nil {
				if p.log != nil {
					p.log.Warn("audio capture failed", "err", err)
				}
				continue
			}
			if !p.session.MediaAllowed() {
				continue
			}
			p.send(frame)
		}
	}
}

func (p *SendPipeline) send(frame audio.PCMFrame) {
	addr, ok := RemoteAudioAddr(p.session)
	if !ok {
		return
	}
	packet, err := p.enc.Encode(frame)
	if err != nil {
		if p.log != nil {
			p.log.Warn("opus encode failed", "err", err)
		}
		return
	}
	dg := mediacodec.Datagram{
		Seq:      p.seq.Add(1) - 1,
		SentTime: time.Now(),
		FPS:      audio.FPS,
		Payload:  packet,
	}
	raw := mediacodec.Encode(dg)
	if len(raw) > mediacodec.MaxDatagramBytes {
		return
	}
	if _, err := p.conn.WriteToUDP(raw, addr); err != nil && p.log != nil {
		p.log.Warn("audio send failed", "err", err)
	}
}

// ReceivePipeline reads AudioDatagrams, filters by the session's negotiated
// peer, decodes, and plays them back through sink.
type ReceivePipeline struct {
	session SessionView
	conn    *net.UDPConn
	dec     *audio.Decoder
	sink    audio.Sink
	log     Logger
}

// NewReceive builds a ReceivePipeline reading from conn and playing through sink.
func NewReceive(session SessionView, conn *net.UDPConn, dec *audio.Decoder, sink audio.Sink, log Logger) *ReceivePipeline {
	return &ReceivePipeline{session: session, conn: conn, dec: dec, sink: sink, log: log}
}

// Run reads and plays datagrams until ctx is done or conn is closed.
func (p *ReceivePipeline) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.conn.Close()
	}()

	buf := make([]byte, mediacodec.MaxDatagramBytes)
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		p.handle(from, raw)
	}
}

func (p *ReceivePipeline) handle(from *net.UDPAddr, raw []byte) {
	if !p.session.MediaAllowed() {
		return
	}
	expect, ok := RemoteAudioAddr(p.session)
	if !ok || !from.IP.Equal(expect.IP) || from.Port != expect.Port {
		return
	}
	dg, ok := mediacodec.Decode(raw)
	if !ok {
		return
	}
	frame, err := p.dec.Decode(dg.Payload)
	if err != nil {
		if p.log != nil {
			p.log.Warn("opus decode failed", "err", err)
		}
		return
	}
	if err := p.sink.PlayFrame(frame); err != nil && p.log != nil {
		p.log.Warn("audio playback failed", "err", err)
	}
}
