package callcontrol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageReaderReadsOneMessagePerCall(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("CALL_HOLD alice"))
	}()

	mr := NewMessageReader(server)
	msg, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, VerbCallHold, msg.Verb)
	require.Equal(t, "alice", msg.Nick)
}

func TestMessageReaderSplitsCoalescedMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		// A single Read coalesces two messages, exercising the
		// variable-arity lookahead: CALLING's optional protocol tag must
		// not swallow the following CALL_END as its protocol argument.
		client.Write([]byte("CALLING alice 5000 CALL_END alice"))
	}()

	mr := NewMessageReader(server)

	first, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, VerbCalling, first.Verb)
	require.Equal(t, "alice", first.Nick)
	require.Equal(t, 5000, first.UDPPort)
	require.Equal(t, "V0", first.Protocol)

	second, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, VerbCallEnd, second.Verb)
	require.Equal(t, "alice", second.Nick)
}

func TestMessageReaderHandlesCallingWithExplicitProtocolTag(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("CALLING alice 5000 V1"))
	}()

	mr := NewMessageReader(server)
	msg, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "V1", msg.Protocol)
}

func TestMessageReaderReassemblesSplitWrites(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("CALL_"))
		time.Sleep(5 * time.Millisecond)
		client.Write([]byte("RESUME bob"))
	}()

	mr := NewMessageReader(server)
	msg, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, VerbCallResume, msg.Verb)
	require.Equal(t, "bob", msg.Nick)
}
