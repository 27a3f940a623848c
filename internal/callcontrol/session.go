// Package callcontrol implements the signaling state machine (spec §4.6):
// the listener, outbound dial, per-call reader, and the single Session
// object every transition acquires its lock to mutate.
package callcontrol

import (
	"net"
	"sync"
	"time"

	"github.com/rs/xid"

	"videocall/internal/errs"
	"videocall/internal/gui"
	"videocall/internal/jitter"
	"videocall/internal/peer"
)

// State is one of the call session states (spec §3).
type State int

const (
	Idle State = iota
	Dialing
	RingingIncoming
	Active
	LocalHeld
	RemoteHeld
	BothHeld
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Dialing:
		return "DIALING"
	case RingingIncoming:
		return "RINGING-INCOMING"
	case Active:
		return "ACTIVE"
	case LocalHeld:
		return "LOCAL-HELD"
	case RemoteHeld:
		return "REMOTE-HELD"
	case BothHeld:
		return "BOTH-HELD"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Session is the single non-IDLE-at-most-once call session object (spec
// invariant I1). Every field below is guarded by mu; callers must not read
// or write them directly.
type Session struct {
	mu sync.Mutex

	local peer.Local
	gui   gui.Capability
	log   Logger

	state State

	remotePeer peer.Identity
	protocol   string
	conn       net.Conn

	ourHold   bool
	theirHold bool

	nextSeq uint32
	callID  xid.ID

	jitterBuf  *jitter.Buffer
	readerDone chan struct{} // closed when the per-call reader exits
	readerWG   sync.WaitGroup

	congestionHook CongestionHook
}

// Logger is the minimal structured-logging contract callcontrol needs,
// satisfied by internal/logging.Logger.
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Debug(msg string, kv ...any)
}

// NewSession returns an idle session for the given local peer.
func NewSession(local peer.Local, g gui.Capability, log Logger) *Session {
	return &Session{local: local, gui: g, log: log, state: Idle}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MediaAllowed reports whether media egress is permitted (invariant I2):
// state is ACTIVE and neither hold flag is set.
func (s *Session) MediaAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Active && !s.ourHold && !s.theirHold
}

// RemotePeer returns the negotiated remote peer identity and protocol tag.
func (s *Session) RemotePeer() (peer.Identity, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remotePeer, s.protocol
}

// NextSeq returns the next outgoing sequence number and increments the
// counter (invariant I3: strictly increasing within a call).
func (s *Session) NextSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// RemoteDatagramAddr returns the UDP address media datagrams should be sent
// to for the current call, or ok=false when no call is active.
func (s *Session) RemoteDatagramAddr() (*net.UDPAddr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle || s.remotePeer.Addr == "" {
		return nil, false
	}
	return &net.UDPAddr{IP: net.ParseIP(s.remotePeer.Addr), Port: s.remotePeer.DatagramPort}, true
}

// JitterBuffer returns the call's jitter buffer, or nil if no call is active.
func (s *Session) JitterBuffer() *jitter.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jitterBuf
}

// CallID returns the current call's correlation id (zero value when idle).
func (s *Session) CallID() xid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// beginCall transitions into ACTIVE with a freshly negotiated remote peer,
// connection, and jitter buffer. Caller must hold no other lock.
func (s *Session) beginCall(remote peer.Identity, protocol string, conn net.Conn, jb *jitter.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotePeer = remote
	s.protocol = protocol
	s.conn = conn
	s.state = Active
	s.ourHold = false
	s.theirHold = false
	s.nextSeq = 0
	s.callID = xid.New()
	s.jitterBuf = jb
	s.readerDone = make(chan struct{})
}

// setState transitions to a new state under the lock.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// trySetDialing atomically checks state==IDLE and transitions to DIALING,
// returning a user-visible rejection reason otherwise.
func (s *Session) trySetDialing() (reason string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		s.state = Dialing
		return "", true
	case Dialing:
		return "calling", false
	default:
		return "in a call", false
	}
}

// tryAcceptIncoming atomically checks state==IDLE before answering a
// CALLING, returning false (caller must reply CALL_BUSY) otherwise.
func (s *Session) tryAcceptIncoming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Idle
}

// setOurHold / setTheirHold update the hold flags and derive the
// aggregate HELD state, or drop back to ACTIVE when both are clear.
func (s *Session) setOurHold(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ourHold = hold
	s.recomputeHoldState()
}

func (s *Session) setTheirHold(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theirHold = hold
	s.recomputeHoldState()
}

func (s *Session) recomputeHoldState() {
	if s.state != Active && s.state != LocalHeld && s.state != RemoteHeld && s.state != BothHeld {
		return
	}
	switch {
	case s.ourHold && s.theirHold:
		s.state = BothHeld
	case s.ourHold:
		s.state = LocalHeld
	case s.theirHold:
		s.state = RemoteHeld
	default:
		s.state = Active
	}
}


// markReaderDone closes readerDone, signaling to cleanup (running on any
// goroutine, including this one) that the per-call reader has observed the
// end of the call and will not touch the connection again. Idempotent.
func (s *Session) markReaderDone() {
	s.mu.Lock()
	if s.readerDone != nil {
		close(s.readerDone)
		s.readerDone = nil
	}
	s.mu.Unlock()
}

// cleanup performs local end-of-call cleanup (spec §4.6): idempotent,
// clears ACTIVE and both hold flags, resets sequencing, clears the
// negotiated protocol, flushes the jitter buffer, closes the socket, and
// restores GUI defaults. Waits for the per-call reader to exit first
// (drain-then-close, spec's original_source-derived restoration, see
// SPEC_FULL.md §4.6).
func (s *Session) cleanup() {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	jb := s.jitterBuf
	done := s.readerDone
	s.state = Idle
	s.ourHold = false
	s.theirHold = false
	s.nextSeq = 0
	s.protocol = ""
	s.remotePeer = peer.Identity{}
	s.conn = nil
	s.jitterBuf = nil
	s.callID = xid.ID{}
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			if s.log != nil {
				s.log.Warn("reader did not exit within drain timeout")
			}
		}
	}
	if conn != nil {
		conn.Close()
	}
	if jb != nil {
		jb.Flush()
	}
	if s.gui != nil {
		s.gui.SetStatus("idle")
	}
}

// EndCall sends CALL_END to the peer (if connected) then performs local
// cleanup. Safe to call from any state; idempotent.
func (s *Session) EndCall() {
	s.mu.Lock()
	conn := s.conn
	nick := s.local.Nickname
	s.mu.Unlock()
	if conn != nil {
		writeLine(conn, Message{Verb: VerbCallEnd, Nick: nick}.Format())
	}
	s.cleanup()
}

// Hold sends CALL_HOLD and sets our-hold locally.
func (s *Session) Hold() error {
	s.mu.Lock()
	conn := s.conn
	nick := s.local.Nickname
	active := s.state != Idle && s.state != Terminated
	s.mu.Unlock()
	if !active {
		return &errs.ProtocolError{Reason: "not in a call"}
	}
	if conn != nil {
		if err := writeLine(conn, Message{Verb: VerbCallHold, Nick: nick}.Format()); err != nil {
			return err
		}
	}
	s.setOurHold(true)
	return nil
}

// Resume sends CALL_RESUME and clears our-hold locally.
func (s *Session) Resume() error {
	s.mu.Lock()
	conn := s.conn
	nick := s.local.Nickname
	s.mu.Unlock()
	if conn != nil {
		if err := writeLine(conn, Message{Verb: VerbCallResume, Nick: nick}.Format()); err != nil {
			return err
		}
	}
	s.setOurHold(false)
	return nil
}

// NotifyCongested sends CALL_CONGESTED to the peer (spec §4.7). Callers
// must already have applied the rate limit (congestion.Feedback.Tick); this
// only performs the write.
func (s *Session) NotifyCongested() error {
	s.mu.Lock()
	conn := s.conn
	nick := s.local.Nickname
	s.mu.Unlock()
	if conn == nil {
		return &errs.ProtocolError{Reason: "not in a call"}
	}
	return writeLine(conn, Message{Verb: VerbCallCongested, Nick: nick}.Format())
}

func writeLine(conn net.Conn, s string) error {
	_, err := conn.Write([]byte(s))
	if err != nil {
		return &errs.TransportError{Op: "write", Err: err}
	}
	return nil
}
