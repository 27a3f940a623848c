package callcontrol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videocall/internal/gui"
	"videocall/internal/jitter"
	"videocall/internal/peer"
)

func testLocal(nick string, port int) peer.Local {
	return peer.Local{Identity: peer.Identity{Nickname: nick, Addr: "127.0.0.1", ReliablePort: port, DatagramPort: port + 1, Protocols: []string{peer.V0, "V1"}}}
}

func TestNewSessionStartsIdle(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	require.Equal(t, Idle, s.State())
	require.False(t, s.MediaAllowed())
}

func TestTrySetDialingRejectsWhenNotIdle(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	_, ok := s.trySetDialing()
	require.True(t, ok)
	require.Equal(t, Dialing, s.State())

	_, ok = s.trySetDialing()
	require.False(t, ok)
}

func TestBeginCallReachesActiveAndAllowsMedia(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	remote := peer.Identity{Nickname: "bob", Addr: "127.0.0.1", DatagramPort: 9101}
	s.beginCall(remote, "V1", server, jitter.New(nil))

	require.Equal(t, Active, s.State())
	require.True(t, s.MediaAllowed())
	got, proto := s.RemotePeer()
	require.Equal(t, remote, got)
	require.Equal(t, "V1", proto)
}

func TestHoldAndResumeToggleMediaAllowed(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	s.beginCall(peer.Identity{Nickname: "bob"}, "V0", server, jitter.New(nil))

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		client.Read(buf)
		close(done)
	}()
	require.NoError(t, s.Hold())
	<-done
	require.Equal(t, LocalHeld, s.State())
	require.False(t, s.MediaAllowed())

	done2 := make(chan struct{})
	go func() {
		buf := make([]byte, 64)
		client.Read(buf)
		close(done2)
	}()
	require.NoError(t, s.Resume())
	<-done2
	require.Equal(t, Active, s.State())
	require.True(t, s.MediaAllowed())
}

func TestBothHeldRequiresBothFlags(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	_, server := net.Pipe()
	defer server.Close()
	s.beginCall(peer.Identity{Nickname: "bob"}, "V0", server, jitter.New(nil))

	s.setOurHold(true)
	require.Equal(t, LocalHeld, s.State())
	s.setTheirHold(true)
	require.Equal(t, BothHeld, s.State())
	s.setOurHold(false)
	require.Equal(t, RemoteHeld, s.State())
}

func TestNextSeqIncrementsMonotonically(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	first := s.NextSeq()
	second := s.NextSeq()
	require.Equal(t, first+1, second)
}

func TestCleanupResetsToIdleAndIsIdempotent(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	_, server := net.Pipe()
	s.beginCall(peer.Identity{Nickname: "bob"}, "V0", server, jitter.New(nil))
	close(s.readerDone) // no real reader goroutine in this test; unblock cleanup's drain wait

	s.cleanup()
	require.Equal(t, Idle, s.State())
	require.False(t, s.MediaAllowed())

	s.cleanup() // idempotent: no panic, no state change
	require.Equal(t, Idle, s.State())
}

// TestRunReaderTriggeredCleanupDoesNotStall exercises the real in-goroutine
// teardown path (EOF on the connection, as on peer disconnect): runReader
// must close readerDone itself before calling cleanup, or cleanup would
// block on a channel only this same, now-blocked goroutine could close,
// always falling through to the 2s drain timeout.
func TestRunReaderTriggeredCleanupDoesNotStall(t *testing.T) {
	client, server := net.Pipe()
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	s.beginCall(peer.Identity{Nickname: "bob"}, "V0", server, jitter.New(nil))

	s.readerWG.Add(1)
	go runReader(s, NewMessageReader(server))

	client.Close() // peer gone: server-side ReadMessage observes EOF

	require.Eventually(t, func() bool { return s.State() == Idle }, 200*time.Millisecond, 5*time.Millisecond)
}

// TestRunReaderCallEndCleanupDoesNotStall is the same assertion via the
// CALL_END verb path rather than a transport error.
func TestRunReaderCallEndCleanupDoesNotStall(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	s.beginCall(peer.Identity{Nickname: "bob"}, "V0", server, jitter.New(nil))

	s.readerWG.Add(1)
	go runReader(s, NewMessageReader(server))

	go func() {
		client.Write([]byte(Message{Verb: VerbCallEnd, Nick: "bob"}.Format()))
	}()

	require.Eventually(t, func() bool { return s.State() == Idle }, 200*time.Millisecond, 5*time.Millisecond)
}

func TestNotifyCongestedFailsWhenIdle(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	err := s.NotifyCongested()
	require.Error(t, err)
}

func TestRemoteDatagramAddrReflectsActiveCall(t *testing.T) {
	s := NewSession(testLocal("alice", 9000), gui.NewHeadless(), nil)
	_, ok := s.RemoteDatagramAddr()
	require.False(t, ok)

	_, server := net.Pipe()
	defer server.Close()
	s.beginCall(peer.Identity{Nickname: "bob", Addr: "127.0.0.1", DatagramPort: 9101}, "V0", server, jitter.New(nil))

	addr, ok := s.RemoteDatagramAddr()
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", addr.IP.String())
	require.Equal(t, 9101, addr.Port)
}
