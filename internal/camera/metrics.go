package camera

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "frames_captured_total",
		Help:      "Frames acquired from the backend",
	}, []string{"device"})

	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to the application by poll or callback",
	}, []string{"device", "mode"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because the queue was full or the device stopped",
	}, []string{"device", "reason"})

	backendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "backend_failures_total",
		Help:      "Failed backend acquire calls",
	}, []string{"device"})

	disconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "disconnects_total",
		Help:      "Devices marked disconnected after repeated backend failures",
	}, []string{"device"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "capture",
		Name:      "queue_depth",
		Help:      "Frames waiting in the poll queue",
	}, []string{"device"})

	deviceEnabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camerad",
		Subsystem: "device",
		Name:      "enabled",
		Help:      "1 while the capture goroutine of the device is enabled",
	}, []string{"device"})
)

// forgetMetrics drops the per-device series once a device is closed.
func forgetMetrics(device string) {
	framesCaptured.DeleteLabelValues(device)
	backendFailures.DeleteLabelValues(device)
	disconnects.DeleteLabelValues(device)
	queueDepth.DeleteLabelValues(device)
	deviceEnabled.DeleteLabelValues(device)
	framesDelivered.DeletePartialMatch(prometheus.Labels{"device": device})
	framesDropped.DeletePartialMatch(prometheus.Labels{"device": device})
}
