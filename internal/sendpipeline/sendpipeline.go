// Package sendpipeline implements the capture/send pipeline (spec §4.4):
// pull a frame, queue it for local preview, wake the renderer, and — when
// media egress is permitted — compress and transmit it to the negotiated
// peer address.
package sendpipeline

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"videocall/internal/capture"
	"videocall/internal/mediacodec"
	"videocall/internal/pacer"
)

// SessionView is the minimal slice of callcontrol.Session the pipeline
// needs, kept narrow so tests can supply a fake.
type SessionView interface {
	MediaAllowed() bool
	NextSeq() uint32
	RemoteDatagramAddr() (*net.UDPAddr, bool)
}

// Logger is the minimal structured-logging contract this package needs.
type Logger interface {
	Warn(msg string, kv ...any)
}

const jpegQuality = 50

// Pipeline runs the capture/send loop.
type Pipeline struct {
	session SessionView
	source  capture.Source
	conn    *net.UDPConn
	sem     *pacer.Semaphore
	log     Logger

	FPS float64

	// PreviewQueue is a single-producer/single-consumer channel the
	// renderer drains for the local preview (spec §4.4 step 2).
	PreviewQueue chan capture.Frame

	extreme atomic.Bool
}

// New builds a Pipeline. conn is the bound local datagram socket used for
// sending (it need not be the same socket used for receiving).
func New(session SessionView, source capture.Source, conn *net.UDPConn, sem *pacer.Semaphore, log Logger, fps float64) *Pipeline {
	return &Pipeline{
		session:      session,
		source:       source,
		conn:         conn,
		sem:          sem,
		log:          log,
		FPS:          fps,
		PreviewQueue: make(chan capture.Frame, 1),
	}
}

// SetExtremeCompression implements congestion.Sender: toggles the
// half-resolution downscale applied before JPEG encoding.
func (p *Pipeline) SetExtremeCompression(enabled bool) { p.extreme.Store(enabled) }

// Run drives the pipeline until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / p.FPS)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := p.source.NextFrame()
		if err == nil {
			select {
			case p.PreviewQueue <- frame:
			default:
				// Drop the stale preview frame; the renderer will pick
				// up the next one. Never block the capture loop.
				select {
				case <-p.PreviewQueue:
				default:
				}
				select {
				case p.PreviewQueue <- frame:
				default:
				}
			}
			p.sem.Raise()

			if p.session.MediaAllowed() {
				p.sendFrame(frame)
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Pipeline) sendFrame(frame capture.Frame) {
	addr, ok := p.session.RemoteDatagramAddr()
	if !ok {
		return
	}

	payload, err := capture.Encode(frame.Image, jpegQuality, p.extreme.Load())
	if err != nil {
		if p.log != nil {
			p.log.Warn("jpeg encode failed", "err", err)
		}
		return
	}

	b := frame.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	if p.extreme.Load() {
		w, h = w/2, h/2
	}

	dg := mediacodec.Datagram{
		Seq:      p.session.NextSeq(),
		SentTime: time.Now(),
		Width:    w,
		Height:   h,
		FPS:      p.FPS,
		Payload:  payload,
	}
	wire := mediacodec.Encode(dg)
	if len(wire) > mediacodec.MaxDatagramBytes {
		if p.log != nil {
			p.log.Warn("encoded datagram exceeds transport limit, dropping frame", "bytes", len(wire))
		}
		return
	}

	if _, err := p.conn.WriteToUDP(wire, addr); err != nil {
		if p.log != nil {
			p.log.Warn("udp send failed", "err", err)
		}
	}
}
