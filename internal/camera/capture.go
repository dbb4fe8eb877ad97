package camera

import (
	"context"
	"errors"
)

// captureLoop pulls frames from the backend until shutdown is set or the
// backend fails FailureThreshold times in a row. Backend.AcquireFrame is only
// ever called from here, so no lock is held across the blocking wait.
func (d *Device) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.logger.Debug("Capture loop started")
	consecutive := 0

	for {
		if d.shutdown.Load() || d.disconnected.Load() {
			d.logger.Debug("Capture loop exiting")
			return
		}

		f, err := d.backend.AcquireFrame(ctx)
		if err != nil {
			if d.shutdown.Load() {
				continue
			}
			if errors.Is(err, ErrTimeout) {
				continue
			}

			consecutive++
			d.failures.Add(1)
			backendFailures.WithLabelValues(d.name).Inc()
			d.logger.Debug("Backend acquire failed", "error", err, "consecutive", consecutive)

			if consecutive >= d.opts.FailureThreshold {
				d.markDisconnected(err)
				return
			}
			continue
		}
		consecutive = 0

		if f == nil {
			continue
		}
		d.deliver(f)
	}
}

// deliver stamps f and hands it to the callback or the poll queue.
func (d *Device) deliver(f *Frame) {
	d.mu.Lock()
	d.seq++
	f.Sequence = d.seq
	cb := d.callback
	var displaced *Frame
	if cb == nil {
		displaced = d.queue.enqueue(f)
		queueDepth.WithLabelValues(d.name).Set(float64(d.queue.len()))
	}
	d.mu.Unlock()

	d.captured.Add(1)
	framesCaptured.WithLabelValues(d.name).Inc()

	if cb != nil {
		cb(f)
		d.delivered.Add(1)
		framesDelivered.WithLabelValues(d.name, string(ModeCallback)).Inc()
		if err := d.releaseToBackend(f); err != nil {
			d.logger.Warn("Failed to release frame after callback", "sequence", f.Sequence, "error", err)
		}
		return
	}

	if displaced != nil {
		d.dropped.Add(1)
		framesDropped.WithLabelValues(d.name, "queue_full").Inc()
		if err := d.releaseToBackend(displaced); err != nil {
			d.logger.Warn("Failed to release dropped frame", "sequence", displaced.Sequence, "error", err)
		}
	}
}

// markDisconnected latches the disconnected flag once and wakes the capture
// goroutine so it exits.
func (d *Device) markDisconnected(cause error) {
	d.mu.Lock()
	if !d.disconnected.CompareAndSwap(false, true) {
		d.mu.Unlock()
		return
	}
	d.lastErr = cause
	cancel := d.cancel
	d.mu.Unlock()
	cancel()

	disconnects.WithLabelValues(d.name).Inc()
	d.logger.Warn("Device disconnected", "failures", d.failures.Load(), "error", cause)

	if d.opts.OnDisconnect != nil {
		d.opts.OnDisconnect(d.name, cause)
	}
	d.notify(StateStarted, StateDisconnected)
}
