// Command videocall runs one peer of the call: it registers with the
// directory, listens for incoming calls, and can place outbound calls by
// nickname. See SPEC_FULL.md for the full component wiring.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"videocall/internal/audio"
	"videocall/internal/audiopipeline"
	"videocall/internal/callcontrol"
	"videocall/internal/capture"
	"videocall/internal/config"
	"videocall/internal/congestion"
	"videocall/internal/directory"
	"videocall/internal/discovery"
	"videocall/internal/gui"
	"videocall/internal/jitter"
	"videocall/internal/logging"
	"videocall/internal/metrics"
	"videocall/internal/pacer"
	"videocall/internal/peer"
	"videocall/internal/recvpipeline"
	"videocall/internal/sendpipeline"
)

// audioPortOffset mirrors internal/audiopipeline's convention: the audio
// datagram socket binds one port above the video datagram socket.
const audioPortOffset = 1

func main() {
	configPath := pflag.String("config", "videocall.ini", "path to the persisted configuration file")
	directoryAddr := pflag.String("directory", "127.0.0.1:9000", "directory service address (host:port)")
	logLevel := pflag.String("log_level", "info", "minimum log severity: debug, info, warning, error")
	logPath := pflag.String("log_file", "videocall.log", "log file path (rotated via lumberjack)")
	metricsAddr := pflag.String("metrics_addr", "", "address to serve Prometheus metrics on (empty to disable)")
	framesPerSecond := pflag.Float64("fps", 20, "video capture/send rate")
	staticImage := pflag.String("image", "", "path to a still image to send instead of a webcam (empty for a placeholder)")
	callNick := pflag.String("call", "", "nickname to dial immediately at startup (empty to just listen)")
	lan := pflag.Bool("lan_discovery", true, "announce and browse for peers over mDNS in addition to the directory")
	withAudio := pflag.Bool("audio", false, "capture and play Opus audio alongside video")
	pflag.Parse()

	log := logging.New(logging.Config{Path: *logPath, Level: *logLevel})
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading configuration", "err", err)
		fmt.Fprintln(os.Stderr, "no usable configuration found; create one at", *configPath)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		log.Error("registering metrics", "err", err)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	localAddr := localOutboundIP()
	local := peer.Local{
		Identity: peer.Identity{
			Nickname:     cfg.Nickname,
			Addr:         localAddr,
			ReliablePort: cfg.TCPPort,
			DatagramPort: cfg.UDPPort,
			Protocols:    []string{peer.V0, "V1"},
		},
		Credentials: peer.Credentials{Password: cfg.Password},
	}

	dirClient := directory.New(*directoryAddr)
	if err := dirClient.Register(local); err != nil {
		err = config.WrapRegisterFailure(err)
		log.Error("directory registration failed", "err", err)
		fmt.Fprintln(os.Stderr, "registration failed:", err)
		os.Exit(1)
	}
	log.Info("registered with directory", "nick", local.Nickname, "addr", *directoryAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lanPeers := discovery.NewCache()
	if *lan {
		if err := discovery.Announce(ctx, local.Identity, log); err != nil {
			log.Warn("mdns announce failed, continuing without LAN discovery", "err", err)
		}
		go func() {
			if err := discovery.Browse(ctx, lanPeers.Observe, lanPeers.Forget, log); err != nil && ctx.Err() == nil {
				log.Warn("mdns browse failed, continuing without LAN discovery", "err", err)
			}
		}()
	}

	g := gui.NewHeadless()
	session := callcontrol.NewSession(local, g, log)

	sendConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.UDPPort})
	if err != nil {
		log.Error("binding datagram socket", "err", err)
		os.Exit(1)
	}
	defer sendConn.Close()

	var source capture.Source
	if *staticImage != "" {
		source, err = capture.NewFileSource(*staticImage)
		if err != nil {
			log.Warn("could not load static image, falling back to placeholder", "err", err)
			source = capture.NewStaticSource(320, 240)
		}
	} else {
		source = capture.NewStaticSource(320, 240)
	}
	defer source.Close()

	sem := pacer.NewSemaphore()
	sendPipe := sendpipeline.New(session, source, sendConn, sem, log, *framesPerSecond)
	recvPipe := recvpipeline.New(session, sendConn, log)

	onCallActive := func(remote peer.Identity, protocol string, jb *jitter.Buffer) {
		log.Info("call active", "peer", remote.Nickname, "protocol", protocol)
		p := pacer.New(sem, jb.TimeBetweenFrames)
		p.Start(ctx)

		fb := congestion.New(sendPipe, protocol, func() {
			if err := session.NotifyCongested(); err != nil {
				log.Warn("sending CALL_CONGESTED failed", "err", err)
			} else {
				metrics.CongestionNoticesSent.Inc()
			}
		})
		session.SetCongestionHook(fb.OnPeerCongested)
		go monitorQuality(ctx, jb, fb)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.TCPPort)))
	if err != nil {
		log.Error("binding reliable-channel listener", "err", err)
		os.Exit(1)
	}
	listener := callcontrol.NewListener(ln, session, onCallActive)

	go sendPipe.Run(ctx)
	go recvPipe.Run(ctx)

	if *withAudio {
		audioConn, audioSource, audioSink, err := setupAudio(cfg.UDPPort+audioPortOffset, log)
		if err != nil {
			log.Warn("audio setup failed, continuing without audio", "err", err)
		} else {
			defer audioConn.Close()
			defer audioSource.Close()
			defer audioSink.Close()

			enc, err := audio.NewEncoder()
			if err != nil {
				log.Warn("opus encoder unavailable, continuing without audio", "err", err)
			} else {
				dec, err := audio.NewDecoder()
				if err != nil {
					log.Warn("opus decoder unavailable, continuing without audio", "err", err)
				} else {
					audioSend := audiopipeline.New(session, audioSource, enc, audioConn, log)
					audioRecv := audiopipeline.NewReceive(session, audioConn, dec, audioSink, log)
					go audioSend.Run(ctx)
					go audioRecv.Run(ctx)
				}
			}
		}
	}

	go func() {
		if err := listener.Serve(); err != nil {
			if ctx.Err() == nil {
				log.Error("listener stopped", "err", err)
			}
		}
	}()

	resolve := func(nick string) (peer.Identity, error) {
		if id, ok := lanPeers.Resolve(nick); ok {
			return id, nil
		}
		return dirClient.Query(nick)
	}

	if *callNick != "" {
		dialer := callcontrol.NewDialer(session, resolve, nil, onCallActive)
		go func() {
			if err := dialer.Call(*callNick); err != nil {
				log.Warn("outbound call failed", "nick", *callNick, "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
	log.Info("shutting down")
	session.EndCall()
	listener.Close()
	cancel()
}

// monitorQuality samples the jitter buffer every 500 ms and drives both the
// Prometheus gauges and the congestion feedback loop.
func monitorQuality(ctx context.Context, jb *jitter.Buffer, fb *congestion.Feedback) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ObserveJitterBuffer(jb)
			quality, _, _, _ := jb.Statistics()
			fb.Tick(quality)
		}
	}
}

// setupAudio binds the audio datagram socket and opens the local mic/speaker,
// falling back to audio.SilentSource/audio.DiscardSink when no hardware is
// available so a headless peer can still send and receive audio.
func setupAudio(port int, log *logging.Logger) (*net.UDPConn, audio.Source, audio.Sink, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, nil, nil, err
	}

	var source audio.Source
	mic, err := audio.NewMicSource()
	if err != nil {
		log.Warn("no microphone available, sending silence", "err", err)
		source = audio.SilentSource{}
	} else {
		source = mic
	}

	var sink audio.Sink
	speaker, err := audio.NewSpeakerSink()
	if err != nil {
		log.Warn("no speaker available, discarding received audio", "err", err)
		sink = audio.DiscardSink{}
	} else {
		sink = speaker
	}

	return conn, source, sink, nil
}

// localOutboundIP best-effort discovers the local address peers should dial
// back to, by opening a UDP "connection" that never sends a packet.
func localOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
