package callcontrol

import (
	"net"
	"time"

	"videocall/internal/errs"
	"videocall/internal/jitter"
	"videocall/internal/pacer"
	"videocall/internal/peer"
)

// preCallingTimeout bounds how long the listener waits for CALLING after
// accepting a connection (spec §4.6, §5).
const preCallingTimeout = 3 * time.Second

// Listener is the permanent acceptor on the local reliable port: one
// connection at a time (spec §4.6).
type Listener struct {
	session *Session
	ln      net.Listener

	// onCallActive lets callers plug in the real pacer and congestion
	// wiring once a call is ACTIVE; tests substitute lighter stand-ins.
	onCallActive func(remote peer.Identity, protocol string, jb *jitter.Buffer)
}

// NewListener wraps ln (already bound to the local reliable port) to accept
// incoming calls into session.
func NewListener(ln net.Listener, session *Session, onCallActive func(peer.Identity, string, *jitter.Buffer)) *Listener {
	return &Listener{ln: ln, session: session, onCallActive: onCallActive}
}

// Serve accepts connections until the listener is closed.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return &errs.TransportError{Op: "accept", Err: err}
		}
		go l.handle(conn)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

func (l *Listener) handle(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(preCallingTimeout))
	mr := NewMessageReader(conn)
	msg, err := mr.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	if msg.Verb != VerbCalling {
		conn.Close()
		return
	}

	if !l.session.tryAcceptIncoming() {
		writeLine(conn, Message{Verb: VerbCallBusy}.Format())
		conn.Close()
		return
	}

	tag, ok := peer.Negotiate(l.session.local.Protocols, []string{msg.Protocol})
	if !ok {
		// Disjoint protocol sets: the call cannot begin (spec invariant I7).
		writeLine(conn, Message{Verb: VerbCallDenied, Nick: l.session.local.Nickname}.Format())
		conn.Close()
		return
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	remote := peer.Identity{
		Nickname:     msg.Nick,
		Addr:         host,
		DatagramPort: msg.UDPPort,
		Protocols:    []string{tag},
	}

	accept := true
	if l.session.gui != nil {
		accept = l.session.gui.AskIncoming(msg.Nick)
	}
	if !accept {
		writeLine(conn, Message{Verb: VerbCallDenied, Nick: l.session.local.Nickname}.Format())
		conn.Close()
		return
	}

	conn.SetReadDeadline(time.Time{})
	if err := writeLine(conn, Message{Verb: VerbCallAccepted, Nick: l.session.local.Nickname, UDPPort: l.session.local.DatagramPort}.Format()); err != nil {
		conn.Close()
		return
	}

	jb := jitter.New(nil) // no onPlayable hook; onCallActive receives jb instead
	l.session.beginCall(remote, tag, conn, jb)
	if l.session.gui != nil {
		l.session.gui.SetStatus("in call with " + remote.Nickname)
	}
	if l.onCallActive != nil {
		l.onCallActive(remote, tag, jb)
	}

	l.session.readerWG.Add(1)
	go runReader(l.session, mr)
}

// pacerFor builds a Pacer bound to a jitter buffer's cadence, the same
// wiring cmd/videocall does directly with pacer.New.
func pacerFor(jb *jitter.Buffer, sem *pacer.Semaphore) *pacer.Pacer {
	return pacer.New(sem, jb.TimeBetweenFrames)
}
