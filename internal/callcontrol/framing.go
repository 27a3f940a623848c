package callcontrol

import (
	"io"
	"net"
	"strings"

	"videocall/internal/errs"
)

// argCount reports how many argument tokens follow the verb: min is always
// required, max is the most this parser will ever consume for that verb
// (CALLING's trailing protocol tag is optional).
func argCount(v Verb) (min, max int) {
	switch v {
	case VerbCalling:
		return 2, 3
	case VerbCallAccepted:
		return 2, 2
	case VerbCallDenied, VerbCallHold, VerbCallResume, VerbCallEnd, VerbCallCongested:
		return 1, 1
	case VerbCallBusy:
		return 0, 0
	default:
		return 0, 0
	}
}

// MessageReader frames whitespace-tokenised signaling messages off a
// reliable byte-stream connection. Messages are not newline-terminated on
// the wire, so a single Read can coalesce more than one message (or split
// one mid-token); MessageReader buffers raw bytes and re-tokenises on each
// refill until it can hand back one complete Message (spec §5).
type MessageReader struct {
	conn    net.Conn
	pending []byte // unconsumed raw bytes, possibly a partial trailing token
	tokens  []string
}

// NewMessageReader wraps conn for framed message reads.
func NewMessageReader(conn net.Conn) *MessageReader {
	return &MessageReader{conn: conn}
}

// ReadMessage blocks (subject to any deadline set on the underlying conn)
// until one full Message is available, parses it, and returns it. Parse
// failures are ProtocolErrors; I/O failures are TransportErrors (or io.EOF
// unwrapped for callers that specifically branch on end-of-stream).
func (r *MessageReader) ReadMessage() (Message, error) {
	for {
		// Messages carry no terminator, so a token that fill held back still
		// ends a message when the message is otherwise complete.
		toks := r.tokens
		if len(r.pending) > 0 {
			toks = append(toks[:len(toks):len(toks)], string(r.pending))
		}
		if len(toks) > 0 {
			verb := Verb(toks[0])
			min, max := argCount(verb)
			_, known := verbKnown(verb)
			if !known && len(r.tokens) > 0 {
				r.tokens = r.tokens[1:]
				return Message{}, &errs.ProtocolError{Reason: "unknown verb: " + string(verb)}
			}
			avail := len(toks) - 1
			if avail < min || !known {
				// Not enough tokens yet for this verb (or only part of a
				// verb split across Reads); need more data unless the
				// stream is closed.
				if err := r.fill(); err != nil {
					return Message{}, err
				}
				continue
			}
			// Variable-arity messages (CALLING's optional protocol tag)
			// only consume the extra token if it isn't itself a
			// recognised verb — otherwise a coalesced follow-up message
			// would be swallowed as an argument of this one.
			take := min
			if max > min && avail > min {
				next := Verb(toks[1+min])
				if _, known := verbKnown(next); !known {
					take = min + 1
				}
			}
			line := strings.Join(toks[:1+take], " ")
			if 1+take > len(r.tokens) {
				r.tokens, r.pending = nil, nil // the held-back token ended this message
			} else {
				r.tokens = r.tokens[1+take:]
			}
			return Parse(line)
		}
		if err := r.fill(); err != nil {
			return Message{}, err
		}
	}
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func verbKnown(v Verb) (Verb, bool) {
	switch v {
	case VerbCalling, VerbCallAccepted, VerbCallDenied, VerbCallBusy,
		VerbCallHold, VerbCallResume, VerbCallEnd, VerbCallCongested:
		return v, true
	default:
		return v, false
	}
}

// fill performs one Read on the underlying connection, appends it to any
// pending partial token, and re-tokenises. A Read can end mid-token (no
// trailing whitespace), so the last field is only promoted to a complete
// token once the buffered bytes end on a whitespace boundary; otherwise it
// is held back as pending for the next fill (ReadMessage still uses it as
// the last token of a message that is otherwise complete).
func (r *MessageReader) fill() error {
	buf := make([]byte, 4096)
	n, err := r.conn.Read(buf)
	if n > 0 {
		r.pending = append(r.pending, buf[:n]...)
		s := string(r.pending)
		fields := strings.Fields(s)
		if len(fields) > 0 && !endsWithSpace(s) {
			last := fields[len(fields)-1]
			r.tokens = append(r.tokens, fields[:len(fields)-1]...)
			r.pending = []byte(last)
		} else {
			r.tokens = append(r.tokens, fields...)
			r.pending = nil
		}
	}
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return &errs.TransportError{Op: "read", Err: err}
	}
	return nil
}
