// Package metrics exposes the call's media-quality and congestion signals
// as Prometheus gauges (SPEC_FULL.md's domain-stack expansion of spec.md
// §4.2/§4.7, which the distillation left as an internal quality score
// only).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"videocall/internal/jitter"
)

// Gauges are package-level so every call-control component can record
// against the same registered collectors without threading a struct
// through every constructor.
var (
	JitterQuality = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocall_jitter_quality",
		Help: "Current jitter buffer quality score (0=SUPER_LOW .. 3=HIGH).",
	})
	PackagesLost = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocall_packages_lost_total",
		Help: "Cumulative count of media datagrams inferred lost by the jitter buffer.",
	})
	AvgDelaySeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocall_avg_delay_seconds",
		Help: "Smoothed average end-to-end delay of received media datagrams.",
	})
	JitterSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocall_jitter_seconds",
		Help: "Smoothed inter-arrival jitter of received media datagrams.",
	})
	ExtremeCompressionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "videocall_extreme_compression_active",
		Help: "1 when extreme_compression is currently enabled, 0 otherwise.",
	})
	CongestionNoticesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocall_congestion_notices_sent_total",
		Help: "Count of CALL_CONGESTED notices emitted to the remote peer.",
	})
)

// Register adds every gauge/counter to reg. Called once at startup.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		JitterQuality, PackagesLost, AvgDelaySeconds, JitterSeconds,
		ExtremeCompressionActive, CongestionNoticesSent,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveJitterBuffer samples b's statistics into the gauges. Intended to
// be called on the same cadence as the congestion feedback loop's Tick.
func ObserveJitterBuffer(b *jitter.Buffer) {
	quality, lost, avgDelay, jit := b.Statistics()
	JitterQuality.Set(float64(quality))
	PackagesLost.Set(float64(lost))
	AvgDelaySeconds.Set(avgDelay)
	JitterSeconds.Set(jit)
}

// SetExtremeCompression records the current extreme_compression state.
func SetExtremeCompression(enabled bool) {
	if enabled {
		ExtremeCompressionActive.Set(1)
	} else {
		ExtremeCompressionActive.Set(0)
	}
}
