package callcontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatParseRoundTripCalling(t *testing.T) {
	m := Message{Verb: VerbCalling, Nick: "alice", UDPPort: 5000, Protocol: "V1"}
	got, err := Parse(m.Format())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestFormatCallingOmitsV0Tag(t *testing.T) {
	m := Message{Verb: VerbCalling, Nick: "alice", UDPPort: 5000, Protocol: "V0"}
	require.Equal(t, "CALLING alice 5000", m.Format())

	got, err := Parse(m.Format())
	require.NoError(t, err)
	require.Equal(t, "V0", got.Protocol)
}

func TestFormatParseRoundTripCallAccepted(t *testing.T) {
	m := Message{Verb: VerbCallAccepted, Nick: "bob", UDPPort: 6001}
	got, err := Parse(m.Format())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestFormatParseRoundTripCallBusy(t *testing.T) {
	got, err := Parse(Message{Verb: VerbCallBusy}.Format())
	require.NoError(t, err)
	require.Equal(t, VerbCallBusy, got.Verb)
}

func TestParseRejectsUnknownVerb(t *testing.T) {
	_, err := Parse("FROBNICATE alice")
	require.Error(t, err)
}

func TestParseRejectsTooFewArgs(t *testing.T) {
	_, err := Parse("CALLING alice")
	require.Error(t, err)

	_, err = Parse("CALL_HOLD")
	require.Error(t, err)
}

func TestParseRejectsNonNumericUDPPort(t *testing.T) {
	_, err := Parse("CALLING alice notaport")
	require.Error(t, err)
}

func TestParseEmptyLine(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}
