// Package metrics holds the Prometheus collectors for the streamer and the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "framepace"

// Drop reasons.
const (
	ReasonNotConnected = "not_connected"
	ReasonBufferFull   = "buffer_full"
	ReasonEncode       = "encode"
	ReasonWrite        = "write"
)

var (
	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport channel",
		},
	)

	framesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks where the camera had no frame yet",
		},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames lost after capture",
		},
		[]string{"reason"},
	)

	frameBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Encoded frame size in bytes",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 10), // 4KiB .. 2MiB
		},
	)

	pacingDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pacing_delay_seconds",
			Help:      "Delay chosen by the pacing controller before the next frame",
			Buckets:   []float64{0, .005, .01, .025, .05, .066, .08, .1, .15, .25, .5},
		},
	)

	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while the capture session is streaming",
		},
	)

	acquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_acquisitions_total",
			Help:      "Camera stream requests by result",
		},
		[]string{"result"}, // result: ok, error, canceled
	)

	ingestFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_frames_total",
			Help:      "Frames received by the backend",
		},
		[]string{"format"},
	)

	ingestConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_connections",
			Help:      "Open /streaming connections",
		},
	)

	viewers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Connected viewers by kind",
		},
		[]string{"kind"}, // kind: mjpeg, ws
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		framesSent,
		framesSkipped,
		framesDropped,
		frameBytes,
		pacingDelay,
		sessionActive,
		acquisitions,
		ingestFrames,
		ingestConnections,
		viewers,
	}
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	out := make([]prometheus.Collector, len(allMetrics))
	copy(out, allMetrics)
	return out
}

// RecordFrameSent records a frame handed to the transport.
func RecordFrameSent(size int) {
	framesSent.Inc()
	frameBytes.Observe(float64(size))
}

// RecordFrameSkipped records a tick with no camera frame.
func RecordFrameSkipped() {
	framesSkipped.Inc()
}

// RecordFrameDropped records a frame lost for reason.
func RecordFrameDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
}

// RecordPacingDelay records the controller output.
func RecordPacingDelay(seconds float64) {
	pacingDelay.Observe(seconds)
}

// SetSessionActive sets the session gauge.
func SetSessionActive(active bool) {
	if active {
		sessionActive.Set(1)
	} else {
		sessionActive.Set(0)
	}
}

// RecordAcquisition records a camera request outcome.
func RecordAcquisition(result string) {
	acquisitions.WithLabelValues(result).Inc()
}

// RecordIngestFrame records a frame received by the backend.
func RecordIngestFrame(format string) {
	ingestFrames.WithLabelValues(format).Inc()
}

// AddIngestConnections adjusts the open connection gauge.
func AddIngestConnections(delta float64) {
	ingestConnections.Add(delta)
}

// SetViewers sets the viewer gauge for kind.
func SetViewers(kind string, n int) {
	viewers.WithLabelValues(kind).Set(float64(n))
}
