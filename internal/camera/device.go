package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// FrameCallback receives frames in callback mode. It runs synchronously on the
// capture goroutine; the frame is released back to the backend as soon as the
// callback returns, so the callback must copy anything it keeps. It must not
// call Stop or Close on the device delivering the frame.
type FrameCallback func(f *Frame)

// Device is one open camera. It owns a capture goroutine while started and
// delivers frames either through AcquireFrame/ReleaseFrame or a FrameCallback.
//
// Lock order: opMu, then mu. acquireMu is never held while taking mu.
type Device struct {
	name    string
	backend Backend
	opts    Options
	logger  *slog.Logger

	// opMu serializes lifecycle transitions so that state only changes
	// under it; the capture goroutine never takes it.
	opMu sync.Mutex

	// mu is the device lock guarding everything below up to acquireMu.
	mu          sync.Mutex
	state       State
	spec        Spec
	specSet     bool
	mode        Mode
	callback    FrameCallback
	queue       *frameQueue
	outstanding map[*Frame]struct{}
	seq         uint64
	lastErr     error
	cancel      context.CancelFunc
	done        chan struct{}

	// acquireMu serializes calls into the backend's release path and
	// guards backendClosed.
	acquireMu     sync.Mutex
	backendClosed bool

	// testHookRelease runs in ReleaseFrame between dropping mu and
	// releasing to the backend.
	testHookRelease func()

	shutdown     atomic.Bool
	enabled      atomic.Bool
	disconnected atomic.Bool

	captured  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

// Open creates a backend for id through driver, opens it and negotiates
// requested. The device is closed again if negotiation fails.
func Open(driver Driver, id string, requested Spec, opts *Options) (*Device, error) {
	if driver == nil {
		return nil, newError(ErrCodeDeviceUnavailable, id, "no driver", nil)
	}
	backend, err := driver.New(id)
	if err != nil {
		return nil, newError(ErrCodeDeviceUnavailable, id, "create backend", err)
	}

	d, err := OpenDevice(backend, id, opts)
	if err != nil {
		return nil, err
	}
	if _, err := d.Configure(requested); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// OpenDevice claims backend and returns a device in the opened state.
func OpenDevice(backend Backend, name string, opts *Options) (*Device, error) {
	if backend == nil {
		return nil, newError(ErrCodeDeviceUnavailable, name, "no backend", nil)
	}
	o := opts.withDefaults()

	if err := backend.Open(); err != nil {
		return nil, newError(ErrCodeDeviceUnavailable, name, "open failed", err)
	}

	done := make(chan struct{})
	close(done)

	d := &Device{
		name:        name,
		backend:     backend,
		opts:        o,
		logger:      o.Logger.With("device", name),
		state:       StateOpened,
		mode:        ModeUnset,
		queue:       newFrameQueue(o.QueueCapacity),
		outstanding: make(map[*Frame]struct{}),
		cancel:      func() {},
		done:        done,
	}
	d.logger.Info("Device opened", "queue_capacity", o.QueueCapacity, "failure_threshold", o.FailureThreshold)
	d.notify("", StateOpened)
	return d, nil
}

// Name returns the identifier the device was opened with.
func (d *Device) Name() string {
	return d.name
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

func (d *Device) stateLocked() State {
	if d.state == StateStarted && d.disconnected.Load() {
		return StateDisconnected
	}
	return d.state
}

// Spec returns the negotiated spec. ok is false until Configure succeeded.
func (d *Device) Spec() (spec Spec, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spec, d.specSet
}

// Mode returns the delivery mode latched on this device.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Enabled reports whether the capture goroutine has been started and not yet
// stopped. It stays true after a disconnect until Stop or Close.
func (d *Device) Enabled() bool {
	return d.enabled.Load()
}

// Disconnected reports whether the device was marked disconnected, either by
// repeated backend failures or by Disconnect.
func (d *Device) Disconnected() bool {
	return d.disconnected.Load()
}

// Done returns a channel closed when the current capture goroutine exits.
// Before the first Start it is already closed.
func (d *Device) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Info returns a snapshot of the device.
func (d *Device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := Info{
		Name:          d.name,
		State:         d.stateLocked(),
		Spec:          d.spec,
		SpecSet:       d.specSet,
		Mode:          d.mode,
		QueueLength:   d.queue.len(),
		QueueCapacity: d.queue.capacity(),
		Outstanding:   len(d.outstanding),
		Stats: Stats{
			Captured:  d.captured.Load(),
			Delivered: d.delivered.Load(),
			Dropped:   d.dropped.Load(),
			Failures:  d.failures.Load(),
		},
	}
	if d.lastErr != nil {
		info.LastError = d.lastErr.Error()
	}
	return info
}

// Configure negotiates requested against the backend's supported specs and
// initializes the backend with the result. It may be called once per open.
func (d *Device) Configure(requested Spec) (Spec, error) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	state, specSet := d.state, d.specSet
	d.mu.Unlock()

	if state == StateClosed {
		return Spec{}, d.errClosed()
	}
	if specSet || state != StateOpened {
		return Spec{}, newError(ErrCodeInvalidState, d.name, "spec already negotiated", nil)
	}

	supported, err := d.backend.SupportedSpecs()
	if err != nil {
		return Spec{}, newError(ErrCodeBackendFailure, d.name, "enumerate supported specs", err)
	}

	spec, err := Negotiate(requested, supported)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.Device = d.name
		}
		return Spec{}, err
	}

	if err := d.backend.Init(spec); err != nil {
		return Spec{}, newError(ErrCodeBackendFailure, d.name, fmt.Sprintf("init %s", spec), err)
	}

	d.mu.Lock()
	d.spec = spec
	d.specSet = true
	d.state = StateConfigured
	d.mu.Unlock()

	d.logger.Info("Spec negotiated", "requested", requested.String(), "spec", spec.String())
	d.notify(StateOpened, StateConfigured)
	return spec, nil
}

// Start spawns the capture goroutine. It is valid from the configured and
// stopped states only; starting a started device is an error.
func (d *Device) Start() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	state := d.stateLocked()
	d.mu.Unlock()

	if state == StateClosed {
		return d.errClosed()
	}
	if d.disconnected.Load() {
		return newError(ErrCodeDisconnected, d.name, "device must be closed and reopened", d.lastError())
	}
	if state != StateConfigured && state != StateStopped {
		return newError(ErrCodeInvalidState, d.name, fmt.Sprintf("cannot start from %s", state), nil)
	}

	if err := d.backend.StartCapture(); err != nil {
		return newError(ErrCodeBackendFailure, d.name, "start capture", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	d.mu.Lock()
	d.shutdown.Store(false)
	d.enabled.Store(true)
	d.cancel = cancel
	d.done = done
	d.state = StateStarted
	d.mu.Unlock()

	deviceEnabled.WithLabelValues(d.name).Set(1)
	go d.captureLoop(ctx, done)

	d.logger.Info("Capture started")
	d.notify(state, StateStarted)
	return nil
}

// Stop signals the capture goroutine, waits for it to exit, releases every
// queued frame and stops backend streaming. It must not be called from the
// capture goroutine.
func (d *Device) Stop() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()
	return d.stopLocked()
}

// stopLocked requires opMu.
func (d *Device) stopLocked() error {
	d.mu.Lock()
	if d.state != StateStarted {
		state := d.state
		d.mu.Unlock()
		if state == StateClosed {
			return d.errClosed()
		}
		return newError(ErrCodeInvalidState, d.name, fmt.Sprintf("cannot stop from %s", state), nil)
	}
	d.shutdown.Store(true)
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	pending := d.queue.drain()
	d.mu.Unlock()
	queueDepth.WithLabelValues(d.name).Set(0)

	var errs []error
	for _, f := range pending {
		d.dropped.Add(1)
		framesDropped.WithLabelValues(d.name, "stopped").Inc()
		if err := d.releaseToBackend(f); err != nil {
			errs = append(errs, newError(ErrCodeBackendFailure, d.name, "release queued frame", err))
		}
	}

	if err := d.backend.StopCapture(); err != nil {
		errs = append(errs, newError(ErrCodeBackendFailure, d.name, "stop capture", err))
	}

	d.mu.Lock()
	old := d.stateLocked()
	d.shutdown.Store(false)
	d.enabled.Store(false)
	d.state = StateStopped
	d.mu.Unlock()

	deviceEnabled.WithLabelValues(d.name).Set(0)
	d.logger.Info("Capture stopped", "released", len(pending))
	d.notify(old, StateStopped)
	return errors.Join(errs...)
}

// Close stops capture if needed, releases every frame still held by the
// application and closes the backend. Every later call fails with
// ErrInvalidState.
func (d *Device) Close() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	state := d.state
	d.mu.Unlock()

	if state == StateClosed {
		return d.errClosed()
	}

	var errs []error
	if state == StateStarted {
		if err := d.stopLocked(); err != nil {
			errs = append(errs, err)
		}
	}

	d.mu.Lock()
	old := d.stateLocked()
	pending := d.queue.drain()
	for f := range d.outstanding {
		pending = append(pending, f)
	}
	d.outstanding = make(map[*Frame]struct{})
	d.callback = nil
	d.state = StateClosed
	d.mu.Unlock()

	for _, f := range pending {
		if err := d.releaseToBackend(f); err != nil {
			errs = append(errs, newError(ErrCodeBackendFailure, d.name, "release outstanding frame", err))
		}
	}

	d.acquireMu.Lock()
	d.backendClosed = true
	if err := d.backend.Close(); err != nil {
		errs = append(errs, newError(ErrCodeBackendFailure, d.name, "close backend", err))
	}
	d.acquireMu.Unlock()

	forgetMetrics(d.name)
	d.logger.Info("Device closed", "reclaimed", len(pending))
	d.notify(old, StateClosed)
	return errors.Join(errs...)
}

// Disconnect marks a started device as disconnected without waiting for the
// backend to fail, for example when its device node was removed. The capture
// goroutine exits; Stop and Close remain valid.
func (d *Device) Disconnect(cause error) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	state := d.state
	d.mu.Unlock()

	switch {
	case state == StateClosed:
		return d.errClosed()
	case state != StateStarted:
		return newError(ErrCodeInvalidState, d.name, fmt.Sprintf("cannot disconnect from %s", state), nil)
	}

	if cause == nil {
		cause = errors.New("device removed")
	}
	d.markDisconnected(cause)
	return nil
}

// SetFrameCallback switches the device to callback delivery. It fails with
// ErrInvalidMode once the device has been polled. Frames already queued are
// released so the queue stays empty in callback mode.
//
// fn runs on the capture goroutine and the frame is released when it returns.
// fn must not call Stop or Close directly; use go d.Stop() instead.
func (d *Device) SetFrameCallback(fn FrameCallback) error {
	if fn == nil {
		return newError(ErrCodeInvalidMode, d.name, "nil frame callback", nil)
	}

	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return d.errClosed()
	}
	if d.mode == ModePoll {
		d.mu.Unlock()
		return newError(ErrCodeInvalidMode, d.name, "device is in poll mode", nil)
	}
	d.mode = ModeCallback
	d.callback = fn
	pending := d.queue.drain()
	d.mu.Unlock()

	queueDepth.WithLabelValues(d.name).Set(0)
	for _, f := range pending {
		d.dropped.Add(1)
		framesDropped.WithLabelValues(d.name, "mode_switch").Inc()
		if err := d.releaseToBackend(f); err != nil {
			d.logger.Warn("Failed to release queued frame", "error", err)
		}
	}
	return nil
}

// AcquireFrame returns the oldest queued frame without blocking. It returns
// (nil, nil) when no frame is available. Every frame returned must be passed
// to ReleaseFrame exactly once.
func (d *Device) AcquireFrame() (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return nil, d.errClosed()
	}
	if d.mode == ModeCallback {
		return nil, newError(ErrCodeInvalidMode, d.name, "device is in callback mode", nil)
	}
	if d.disconnected.Load() {
		return nil, newError(ErrCodeDisconnected, d.name, "device disconnected", d.lastErr)
	}
	d.mode = ModePoll

	f, ok := d.queue.dequeue()
	if !ok {
		return nil, nil
	}
	d.outstanding[f] = struct{}{}
	d.delivered.Add(1)
	queueDepth.WithLabelValues(d.name).Set(float64(d.queue.len()))
	framesDelivered.WithLabelValues(d.name, string(ModePoll)).Inc()
	return f, nil
}

// ReleaseFrame hands a frame obtained from AcquireFrame back to the backend.
// Releasing a frame twice or one from another device fails with
// ErrInvalidFrame.
func (d *Device) ReleaseFrame(f *Frame) error {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return d.errClosed()
	}
	if f == nil {
		d.mu.Unlock()
		return newError(ErrCodeInvalidFrame, d.name, "nil frame", nil)
	}
	if _, ok := d.outstanding[f]; !ok {
		d.mu.Unlock()
		return newError(ErrCodeInvalidFrame, d.name,
			fmt.Sprintf("frame %d was not acquired from this device or was already released", f.Sequence), nil)
	}
	delete(d.outstanding, f)
	d.mu.Unlock()

	if d.testHookRelease != nil {
		d.testHookRelease()
	}
	if err := d.releaseToBackend(f); err != nil {
		if errors.Is(err, errBackendClosed) {
			// Close won the race; the backend reclaimed the buffer.
			return d.errClosed()
		}
		return newError(ErrCodeBackendFailure, d.name, "release frame", err)
	}
	return nil
}

var errBackendClosed = errors.New("backend closed")

func (d *Device) releaseToBackend(f *Frame) error {
	d.acquireMu.Lock()
	defer d.acquireMu.Unlock()
	if d.backendClosed {
		return errBackendClosed
	}
	return d.backend.ReleaseFrame(f)
}

func (d *Device) lastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Device) errClosed() error {
	return newError(ErrCodeInvalidState, d.name, "device is closed", nil)
}

func (d *Device) notify(oldState, newState State) {
	if d.opts.OnStateChange != nil {
		d.opts.OnStateChange(d.name, oldState, newState)
	}
}
