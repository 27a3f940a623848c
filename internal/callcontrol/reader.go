package callcontrol

import (
	"io"
)

// CongestionHook, when set on a Session via SetCongestionHook, is invoked each
// time a CALL_CONGESTED notice arrives from the peer (V1+ only; ignored
// under V0). Wired by the congestion feedback package to enable
// extreme_compression on the sender for congestion.CongestedInterval.
type CongestionHook func()

// SetCongestionHook installs fn to run on every received CALL_CONGESTED.
func (s *Session) SetCongestionHook(fn CongestionHook) {
	s.mu.Lock()
	s.congestionHook = fn
	s.mu.Unlock()
}

// runReader is the per-call reader loop (spec §4.6): loops on receive,
// reacting to HOLD/RESUME/END/CONGESTED, and performs local cleanup on
// socket error, EOF, or CALL_END.
//
// cleanup() blocks until readerDone is closed so it never races a fresh
// beginCall with this goroutine still reading the old connection. Since
// runReader calls cleanup() itself on every exit path, it must close
// readerDone *before* calling cleanup() rather than in a deferred close
// that would only run after cleanup() already returned — deferring it
// would make cleanup() wait on a channel only this same goroutine, now
// blocked inside cleanup(), could ever close.
func runReader(s *Session, mr *MessageReader) {
	defer s.readerWG.Done()

	for {
		msg, err := mr.ReadMessage()
		if err != nil {
			if err != io.EOF && s.log != nil {
				s.log.Warn("call reader error", "err", err)
			}
			s.markReaderDone()
			s.cleanup()
			return
		}

		_, protocol := s.RemotePeer()

		switch msg.Verb {
		case VerbCallHold:
			s.setTheirHold(true)
		case VerbCallResume:
			s.setTheirHold(false)
		case VerbCallEnd:
			s.markReaderDone()
			s.cleanup()
			if s.gui != nil {
				s.gui.Notify(msg.Nick + " ended the call")
			}
			return
		case VerbCallCongested:
			if protocol == "V0" {
				continue // ignored under V0, per spec §4.6
			}
			s.mu.Lock()
			hook := s.congestionHook
			s.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
	}
}
