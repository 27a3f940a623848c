package callcontrol

import (
	"net"
	"strconv"
	"time"

	"videocall/internal/errs"
	"videocall/internal/jitter"
	"videocall/internal/peer"
)

// setupTimeout bounds connect + first-response recv during outbound dial
// (spec §4.6, §5).
const setupTimeout = 30 * time.Second

// Dialer resolves and rings a remote peer. Resolve is injected so the
// directory client (or a test double) can supply address/port/protocols.
type Dialer struct {
	session *Session
	Resolve func(nick string) (peer.Identity, error)
	Dial    func(network, addr string) (net.Conn, error)

	onCallActive func(remote peer.Identity, protocol string, jb *jitter.Buffer)
}

// NewDialer builds a Dialer for session. dial defaults to net.DialTimeout
// when nil.
func NewDialer(session *Session, resolve func(string) (peer.Identity, error), dial func(string, string) (net.Conn, error), onCallActive func(peer.Identity, string, *jitter.Buffer)) *Dialer {
	if dial == nil {
		dial = func(network, addr string) (net.Conn, error) {
			return net.DialTimeout(network, addr, setupTimeout)
		}
	}
	return &Dialer{session: session, Resolve: resolve, Dial: dial, onCallActive: onCallActive}
}

// Call places an outbound call to nick. Must be run off the GUI thread
// (spec §5); callers should invoke it via `go dialer.Call(...)` or
// equivalent. Returns once the call reaches ACTIVE or fails.
func (d *Dialer) Call(nick string) error {
	reason, ok := d.session.trySetDialing()
	if !ok {
		if d.session.gui != nil {
			d.session.gui.Notify("cannot call: " + reason)
		}
		return &errs.ProtocolError{Reason: reason}
	}
	if d.session.gui != nil {
		d.session.gui.SetStatus("calling " + nick + "...")
	}

	remote, err := d.Resolve(nick)
	if err != nil {
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify("could not find " + nick + ": " + err.Error())
		}
		return err
	}

	tag, ok := peer.Negotiate(d.session.local.Protocols, remote.Protocols)
	if !ok {
		// Disjoint protocol sets: the call cannot begin (spec invariant I7).
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify("cannot call " + nick + ": no common protocol")
		}
		return &errs.ProtocolError{Reason: "no common protocol with " + nick}
	}

	addr := net.JoinHostPort(remote.Addr, strconv.Itoa(remote.ReliablePort))
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify("could not reach " + nick)
		}
		return &errs.TransportError{Op: "dial", Err: err}
	}
	conn.SetDeadline(time.Now().Add(setupTimeout))

	calling := Message{Verb: VerbCalling, Nick: d.session.local.Nickname, UDPPort: d.session.local.DatagramPort, Protocol: tag}
	if err := writeLine(conn, calling.Format()); err != nil {
		conn.Close()
		d.session.setState(Idle)
		return err
	}

	mr := NewMessageReader(conn)
	resp, err := mr.ReadMessage()
	if err != nil {
		conn.Close()
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify("call setup failed: " + err.Error())
		}
		return &errs.TimeoutError{Op: "await response"}
	}

	switch resp.Verb {
	case VerbCallAccepted:
		remote.DatagramPort = resp.UDPPort
		conn.SetDeadline(time.Time{})
		jb := jitter.New(nil)
		d.session.beginCall(remote, tag, conn, jb)
		if d.session.gui != nil {
			d.session.gui.SetStatus("in call with " + remote.Nickname)
		}
		if d.onCallActive != nil {
			d.onCallActive(remote, tag, jb)
		}
		d.session.readerWG.Add(1)
		go runReader(d.session, mr)
		return nil

	case VerbCallDenied, VerbCallBusy:
		conn.Close()
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify(nick + " is unavailable")
		}
		return &errs.ProtocolError{Reason: string(resp.Verb)}

	default:
		conn.Close()
		d.session.setState(Idle)
		if d.session.gui != nil {
			d.session.gui.Notify("unexpected response from " + nick)
		}
		return &errs.ProtocolError{Reason: "unexpected verb: " + string(resp.Verb)}
	}
}
