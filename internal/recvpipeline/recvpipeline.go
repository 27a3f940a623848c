// Package recvpipeline implements the receive pipeline (spec §4.5): read
// datagrams off the bound UDP socket, filter to the current call's peer
// address while media ingress is permitted, decode, and insert into the
// call's jitter buffer.
package recvpipeline

import (
	"context"
	"net"

	"videocall/internal/jitter"
	"videocall/internal/mediacodec"
	"videocall/internal/peer"
)

// SessionView is the minimal slice of callcontrol.Session the pipeline
// needs, kept narrow so tests can supply a fake.
type SessionView interface {
	MediaAllowed() bool
	RemotePeer() (peer.Identity, string)
	JitterBuffer() *jitter.Buffer
}

// Logger is the minimal structured-logging contract this package needs.
type Logger interface {
	Debug(msg string, kv ...any)
}

const maxDatagram = mediacodec.MaxDatagramBytes + 64 // headroom for UDP/IP framing slop

// Pipeline runs the receive loop for one bound local datagram socket,
// routing arrivals into whichever call is currently active on session.
type Pipeline struct {
	session SessionView
	conn    *net.UDPConn
	log     Logger
}

// New builds a Pipeline reading from conn (the same or a different socket
// than the one sendpipeline writes on; spec §4.5 does not require they be
// the same descriptor).
func New(session SessionView, conn *net.UDPConn, log Logger) *Pipeline {
	return &Pipeline{session: session, conn: conn, log: log}
}

// Run drives the receive loop until ctx is done or the socket is closed.
func (p *Pipeline) Run(ctx context.Context) {
	buf := make([]byte, maxDatagram)
	go func() {
		<-ctx.Done()
		p.conn.Close()
	}()

	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if p.log != nil {
				p.log.Debug("udp read failed", "err", err)
			}
			return
		}
		p.handle(from, buf[:n])
	}
}

func (p *Pipeline) handle(from *net.UDPAddr, raw []byte) {
	if !p.session.MediaAllowed() {
		return
	}
	remote, _ := p.session.RemotePeer()
	if remote.Addr == "" || from.IP.String() != remote.Addr || from.Port != remote.DatagramPort {
		if p.log != nil {
			p.log.Debug("dropping datagram from unrecognized source", "addr", from.String())
		}
		return
	}

	dg, ok := mediacodec.Decode(raw)
	if !ok {
		if p.log != nil {
			p.log.Debug("dropping malformed datagram", "from", from.String())
		}
		return
	}

	jb := p.session.JitterBuffer()
	if jb == nil {
		return
	}
	jb.Insert(dg)
}
