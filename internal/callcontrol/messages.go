package callcontrol

import (
	"strconv"
	"strings"

	"videocall/internal/errs"
)

// Verb identifies a signaling message type (spec §4.6).
type Verb string

const (
	VerbCalling      Verb = "CALLING"
	VerbCallAccepted Verb = "CALL_ACCEPTED"
	VerbCallDenied   Verb = "CALL_DENIED"
	VerbCallBusy     Verb = "CALL_BUSY"
	VerbCallHold     Verb = "CALL_HOLD"
	VerbCallResume   Verb = "CALL_RESUME"
	VerbCallEnd      Verb = "CALL_END"
	VerbCallCongested Verb = "CALL_CONGESTED"
)

// Message is one parsed signaling line.
type Message struct {
	Verb     Verb
	Nick     string
	UDPPort  int
	Protocol string // empty means V0 (spec §4.6)
}

// Format renders m back to its wire form: whitespace-tokenised ASCII, no
// trailing newline (the transport framer is responsible for delimiting).
func (m Message) Format() string {
	switch m.Verb {
	case VerbCalling:
		s := string(VerbCalling) + " " + m.Nick + " " + strconv.Itoa(m.UDPPort)
		if m.Protocol != "" && m.Protocol != "V0" {
			s += " " + m.Protocol
		}
		return s
	case VerbCallAccepted:
		return string(VerbCallAccepted) + " " + m.Nick + " " + strconv.Itoa(m.UDPPort)
	case VerbCallDenied, VerbCallHold, VerbCallResume, VerbCallEnd, VerbCallCongested:
		return string(m.Verb) + " " + m.Nick
	case VerbCallBusy:
		return string(VerbCallBusy)
	default:
		return string(m.Verb)
	}
}

// Parse tokenises a single signaling line. The parser accepts extra
// trailing tokens for forward compatibility but rejects unknown verbs or
// mismatched (too few) token counts (spec §6).
func Parse(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, &errs.ProtocolError{Reason: "empty message"}
	}
	verb := Verb(fields[0])
	args := fields[1:]

	switch verb {
	case VerbCalling:
		if len(args) < 2 {
			return Message{}, &errs.ProtocolError{Reason: "CALLING requires nick and udp_port"}
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return Message{}, &errs.ProtocolError{Reason: "CALLING: non-numeric udp_port"}
		}
		proto := "V0"
		if len(args) >= 3 {
			proto = args[2]
		}
		return Message{Verb: verb, Nick: args[0], UDPPort: port, Protocol: proto}, nil

	case VerbCallAccepted:
		if len(args) < 2 {
			return Message{}, &errs.ProtocolError{Reason: "CALL_ACCEPTED requires nick and udp_port"}
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return Message{}, &errs.ProtocolError{Reason: "CALL_ACCEPTED: non-numeric udp_port"}
		}
		return Message{Verb: verb, Nick: args[0], UDPPort: port}, nil

	case VerbCallDenied, VerbCallHold, VerbCallResume, VerbCallEnd, VerbCallCongested:
		if len(args) < 1 {
			return Message{}, &errs.ProtocolError{Reason: string(verb) + " requires nick"}
		}
		return Message{Verb: verb, Nick: args[0]}, nil

	case VerbCallBusy:
		return Message{Verb: verb}, nil

	default:
		return Message{}, &errs.ProtocolError{Reason: "unknown verb: " + fields[0]}
	}
}
