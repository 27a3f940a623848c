// Package mediacodec implements the wire format for one media datagram
// (spec §4.1): four ASCII fields separated by '#', then the raw payload.
//
//	<seq>#<sent_ts>#<WxH>#<fps>#<payload...>
package mediacodec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxDatagramBytes is the largest payload a single datagram transport send
// may carry (spec §4.1, §6). Callers must enforce this before transmission.
const MaxDatagramBytes = 65507

// Datagram is one encoded/decoded media packet, before arrival stamping.
type Datagram struct {
	Seq        uint32
	SentTime   time.Time // fractional seconds since the Unix epoch on the wire
	Width      int
	Height     int
	FPS        float64
	Payload    []byte
}

// Resolution formats Width/Height as the wire's "WxH" field.
func (d Datagram) Resolution() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Encode serializes d into the wire format. The caller must ensure the
// result does not exceed MaxDatagramBytes before transmitting it.
func Encode(d Datagram) []byte {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(uint64(d.Seq), 10))
	buf.WriteByte('#')
	buf.WriteString(strconv.FormatFloat(sentTimeSeconds(d.SentTime), 'f', -1, 64))
	buf.WriteByte('#')
	buf.WriteString(d.Resolution())
	buf.WriteByte('#')
	buf.WriteString(strconv.FormatFloat(d.FPS, 'f', -1, 64))
	buf.WriteByte('#')
	buf.Write(d.Payload)
	return buf.Bytes()
}

func sentTimeSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Decode parses the wire format produced by Encode. Decoders split on the
// first four '#' occurrences only and take the remainder verbatim, so the
// payload may itself contain '#' bytes. Malformed packets (fewer than four
// delimiters, non-numeric fields) return ok=false and must be dropped
// silently by the caller (spec §4.1, §7: media is best-effort).
func Decode(raw []byte) (d Datagram, ok bool) {
	fields := make([][]byte, 0, 5)
	rest := raw
	for i := 0; i < 4; i++ {
		idx := bytes.IndexByte(rest, '#')
		if idx < 0 {
			return Datagram{}, false
		}
		fields = append(fields, rest[:idx])
		rest = rest[idx+1:]
	}
	fields = append(fields, rest) // payload, verbatim

	seq, err := strconv.ParseUint(string(fields[0]), 10, 32)
	if err != nil {
		return Datagram{}, false
	}
	sentSecs, err := strconv.ParseFloat(string(fields[1]), 64)
	if err != nil {
		return Datagram{}, false
	}
	w, h, ok := parseResolution(string(fields[2]))
	if !ok {
		return Datagram{}, false
	}
	fps, err := strconv.ParseFloat(string(fields[3]), 64)
	if err != nil {
		return Datagram{}, false
	}

	payload := make([]byte, len(fields[4]))
	copy(payload, fields[4])

	return Datagram{
		Seq:      uint32(seq),
		SentTime: time.Unix(0, int64(sentSecs*1e9)),
		Width:    w,
		Height:   h,
		FPS:      fps,
		Payload:  payload,
	}, true
}

func parseResolution(s string) (w, h int, ok bool) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	wv, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	hv, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return wv, hv, true
}
