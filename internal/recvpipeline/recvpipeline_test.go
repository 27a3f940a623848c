package recvpipeline

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videocall/internal/jitter"
	"videocall/internal/mediacodec"
	"videocall/internal/peer"
)

type fakeSession struct {
	allowed bool
	remote  peer.Identity
	jb      *jitter.Buffer
}

func (f *fakeSession) MediaAllowed() bool                      { return f.allowed }
func (f *fakeSession) RemotePeer() (peer.Identity, string)     { return f.remote, "V1" }
func (f *fakeSession) JitterBuffer() *jitter.Buffer             { return f.jb }

func mustUDPConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendDatagram(t *testing.T, to *net.UDPAddr, seq uint32) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, to)
	require.NoError(t, err)
	defer conn.Close()
	dg := mediacodec.Datagram{Seq: seq, SentTime: time.Now(), Width: 4, Height: 4, FPS: 30, Payload: []byte("x")}
	_, err = conn.Write(mediacodec.Encode(dg))
	require.NoError(t, err)
}

func TestRecvPipelineInsertsFromRecognizedPeer(t *testing.T) {
	recvConn := mustUDPConn(t)
	localAddr := recvConn.LocalAddr().(*net.UDPAddr)

	jb := jitter.New(nil)
	sess := &fakeSession{
		allowed: true,
		remote:  peer.Identity{Addr: "127.0.0.1", DatagramPort: 0},
		jb:      jb,
	}

	// Send from an ephemeral port; record what the OS picks, then fix up
	// the session's expected peer to match.
	senderConn, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer senderConn.Close()
	sess.remote.DatagramPort = senderConn.LocalAddr().(*net.UDPAddr).Port

	p := New(sess, recvConn, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	dg := mediacodec.Datagram{Seq: 1, SentTime: time.Now(), Width: 4, Height: 4, FPS: 30, Payload: []byte("hello")}
	_, err = senderConn.Write(mediacodec.Encode(dg))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return jb.Len() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestRecvPipelineDropsWhenMediaNotAllowed(t *testing.T) {
	recvConn := mustUDPConn(t)
	localAddr := recvConn.LocalAddr().(*net.UDPAddr)

	jb := jitter.New(nil)
	sess := &fakeSession{allowed: false, remote: peer.Identity{Addr: "127.0.0.1"}, jb: jb}

	p := New(sess, recvConn, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	sendDatagram(t, localAddr, 1)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, jb.Len())
}

func TestRecvPipelineDropsFromUnrecognizedPeer(t *testing.T) {
	recvConn := mustUDPConn(t)
	localAddr := recvConn.LocalAddr().(*net.UDPAddr)

	jb := jitter.New(nil)
	sess := &fakeSession{allowed: true, remote: peer.Identity{Addr: "127.0.0.1", DatagramPort: 1}, jb: jb}

	p := New(sess, recvConn, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go p.Run(ctx)

	sendDatagram(t, localAddr, 1)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 0, jb.Len())
}
