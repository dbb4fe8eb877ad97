package camera

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func openConfigured(t *testing.T, b *fakeBackend, opts *Options) *Device {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	d, err := OpenDevice(b, "fake0", opts)
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	if _, err := d.Configure(Spec{Format: FormatYUYV, Width: 640, Height: 480}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return d
}

func TestDeviceLifecycle(t *testing.T) {
	b := newFakeBackend()
	d, err := OpenDevice(b, "fake0", &Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	if d.State() != StateOpened {
		t.Fatalf("expected opened, got %s", d.State())
	}

	if err := d.Start(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState starting unconfigured device, got %v", err)
	}

	spec, err := d.Configure(Spec{Width: 1280, Height: 720, FPS: 30})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if spec.Width != 1920 || spec.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %s", spec)
	}
	if got, ok := d.Spec(); !ok || got != spec {
		t.Fatalf("expected stored spec %s, got %s (set=%v)", spec, got, ok)
	}
	if _, err := d.Configure(Spec{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second Configure, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := d.Start(); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if !d.Enabled() || d.State() != StateStarted {
			t.Fatalf("expected started and enabled, got %s", d.State())
		}
		if err := d.Stop(); err != nil {
			t.Fatalf("Stop %d failed: %v", i, err)
		}
		if d.Enabled() || d.State() != StateStopped {
			t.Fatalf("expected stopped and disabled, got %s", d.State())
		}
	}

	if err := d.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState stopping stopped device, got %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.State() != StateClosed {
		t.Fatalf("expected closed, got %s", d.State())
	}

	want := "open,init,start,stop,start,stop,close"
	if got := strings.Join(b.callLog(), ","); got != want {
		t.Errorf("backend calls = %s, want %s", got, want)
	}
}

func TestDeviceOperationsAfterClose(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	checks := map[string]error{
		"Start":        d.Start(),
		"Stop":         d.Stop(),
		"Close":        d.Close(),
		"ReleaseFrame": d.ReleaseFrame(&Frame{}),
	}
	_, checks["Configure"] = d.Configure(Spec{})
	_, checks["AcquireFrame"] = d.AcquireFrame()
	checks["SetFrameCallback"] = d.SetFrameCallback(func(*Frame) {})

	for op, err := range checks {
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("%s after Close: expected ErrInvalidState, got %v", op, err)
		}
	}
}

func TestDeviceDoubleStart(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if d.State() != StateStarted {
		t.Errorf("expected still started, got %s", d.State())
	}
}

func TestOpenUnsupportedFormat(t *testing.T) {
	b := newFakeBackend()
	_, err := Open(&fakeDriver{backend: b}, "fake0", Spec{Format: FormatMJPEG}, &Options{Logger: testLogger()})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	calls := b.callLog()
	if len(calls) == 0 || calls[len(calls)-1] != "close" {
		t.Errorf("expected backend closed after failed negotiation, calls %v", calls)
	}
}

func TestOpenUnavailable(t *testing.T) {
	b := newFakeBackend()
	b.openErr = errors.New("device busy")
	_, err := Open(&fakeDriver{backend: b}, "fake0", Spec{}, &Options{Logger: testLogger()})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}

	_, err = Open(&fakeDriver{newErr: errors.New("no such device")}, "fake9", Spec{}, nil)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable from driver, got %v", err)
	}
}

func TestConfigureInitFailure(t *testing.T) {
	b := newFakeBackend()
	b.initErr = errors.New("VIDIOC_S_FMT: invalid argument")
	d, err := OpenDevice(b, "fake0", &Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Configure(Spec{}); !errors.Is(err, ErrBackendFailure) {
		t.Fatalf("expected ErrBackendFailure, got %v", err)
	}
	if _, ok := d.Spec(); ok {
		t.Error("expected spec unset after failed init")
	}
}

func TestDeviceDropsOldestWhenFull(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, &Options{QueueCapacity: 4})
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := b.push(6)
	waitFor(t, "six captured frames", func() bool { return d.Info().Stats.Captured == 6 })

	for i := 0; i < 2; i++ {
		if b.releaseCount(frames[i]) != 1 {
			t.Errorf("expected frame %d released once after drop", i+1)
		}
	}

	for want := uint64(3); want <= 6; want++ {
		f, err := d.AcquireFrame()
		if err != nil {
			t.Fatalf("AcquireFrame failed: %v", err)
		}
		if f == nil || f.Sequence != want {
			t.Fatalf("expected sequence %d, got %v", want, f)
		}
		if err := d.ReleaseFrame(f); err != nil {
			t.Fatalf("ReleaseFrame failed: %v", err)
		}
	}

	f, err := d.AcquireFrame()
	if err != nil || f != nil {
		t.Fatalf("expected empty queue, got %v, %v", f, err)
	}
	if got := d.Info().Stats.Dropped; got != 2 {
		t.Errorf("expected 2 dropped, got %d", got)
	}
}

func TestReleaseFrameTwice(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	b.push(1)
	waitFor(t, "captured frame", func() bool { return d.Info().QueueLength == 1 })

	f, err := d.AcquireFrame()
	if err != nil || f == nil {
		t.Fatalf("AcquireFrame = %v, %v", f, err)
	}
	if err := d.ReleaseFrame(f); err != nil {
		t.Fatalf("first ReleaseFrame failed: %v", err)
	}
	if err := d.ReleaseFrame(f); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
	if b.releaseCount(f) != 1 {
		t.Errorf("expected one backend release, got %d", b.releaseCount(f))
	}

	if err := d.ReleaseFrame(&Frame{}); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame for foreign frame, got %v", err)
	}
	if err := d.ReleaseFrame(nil); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame for nil frame, got %v", err)
	}
}

func TestStopReleasesQueuedFrames(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, &Options{QueueCapacity: 8})
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := b.push(5)
	waitFor(t, "queued frames", func() bool { return d.Info().QueueLength == 5 })

	done := d.Done()
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case <-done:
	default:
		t.Fatal("expected capture goroutine joined when Stop returns")
	}
	for i, f := range frames {
		if b.releaseCount(f) != 1 {
			t.Errorf("frame %d: expected released once, got %d", i, b.releaseCount(f))
		}
	}
	if d.Info().QueueLength != 0 {
		t.Error("expected empty queue after Stop")
	}

	calls := b.callLog()
	if calls[len(calls)-1] != "stop" {
		t.Errorf("expected backend stopped last, calls %v", calls)
	}
}

func TestCloseReleasesOutstandingFrames(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := b.push(3)
	waitFor(t, "queued frames", func() bool { return d.Info().QueueLength == 3 })

	held, err := d.AcquireFrame()
	if err != nil || held == nil {
		t.Fatalf("AcquireFrame = %v, %v", held, err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if b.releaseCount(held) != 0 {
		t.Fatal("frame held by caller must survive Stop")
	}
	if d.Info().Outstanding != 1 {
		t.Fatalf("expected 1 outstanding, got %d", d.Info().Outstanding)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for i, f := range frames {
		if b.releaseCount(f) != 1 {
			t.Errorf("frame %d: expected released once, got %d", i, b.releaseCount(f))
		}
	}
}

func TestReleaseFrameRacingClose(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	b.push(1)
	waitFor(t, "queued frame", func() bool { return d.Info().QueueLength == 1 })

	held, err := d.AcquireFrame()
	if err != nil || held == nil {
		t.Fatalf("AcquireFrame = %v, %v", held, err)
	}

	// Close runs after ReleaseFrame has taken the frame off the outstanding
	// set but before it reaches the backend.
	d.testHookRelease = func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}
	if err := d.ReleaseFrame(held); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	b.mu.Lock()
	late := b.lateReleases
	b.mu.Unlock()
	if late != 0 {
		t.Errorf("backend saw %d releases after Close", late)
	}
}

func TestCallbackMode(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	var mu sync.Mutex
	var seqs []uint64
	err := d.SetFrameCallback(func(f *Frame) {
		if b.releaseCount(f) != 0 {
			t.Error("frame released before callback returned")
		}
		mu.Lock()
		seqs = append(seqs, f.Sequence)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SetFrameCallback failed: %v", err)
	}
	if d.Mode() != ModeCallback {
		t.Fatalf("expected callback mode, got %s", d.Mode())
	}

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := b.push(5)
	waitFor(t, "callback deliveries", func() bool { return b.totalReleased() == 5 })

	mu.Lock()
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Errorf("delivery %d: expected sequence %d, got %d", i, i+1, s)
		}
	}
	mu.Unlock()
	for i, f := range frames {
		if b.releaseCount(f) != 1 {
			t.Errorf("frame %d: expected released once, got %d", i, b.releaseCount(f))
		}
	}

	if _, err := d.AcquireFrame(); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode polling in callback mode, got %v", err)
	}
	if d.Info().QueueLength != 0 {
		t.Error("expected queue unused in callback mode")
	}
}

func TestPollModeRejectsCallback(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if _, err := d.AcquireFrame(); err != nil {
		t.Fatalf("AcquireFrame failed: %v", err)
	}
	if d.Mode() != ModePoll {
		t.Fatalf("expected poll mode, got %s", d.Mode())
	}
	if err := d.SetFrameCallback(func(*Frame) {}); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if err := d.SetFrameCallback(nil); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode for nil callback, got %v", err)
	}
}

func TestCallbackDrainsQueue(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	frames := b.push(2)
	waitFor(t, "queued frames", func() bool { return d.Info().QueueLength == 2 })

	if err := d.SetFrameCallback(func(*Frame) {}); err != nil {
		t.Fatalf("SetFrameCallback failed: %v", err)
	}
	for i, f := range frames {
		if b.releaseCount(f) != 1 {
			t.Errorf("frame %d: expected released on mode switch", i)
		}
	}
}

func TestDisconnectAfterRepeatedFailures(t *testing.T) {
	b := newFakeBackend()
	var mu sync.Mutex
	var transitions []State
	disconnected := make(chan error, 1)

	d := openConfigured(t, b, &Options{
		FailureThreshold: 3,
		OnStateChange: func(_ string, _, newState State) {
			mu.Lock()
			transitions = append(transitions, newState)
			mu.Unlock()
		},
		OnDisconnect: func(_ string, cause error) {
			disconnected <- cause
		},
	})
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Timeouts alone never disconnect.
	time.Sleep(30 * time.Millisecond)
	if d.Disconnected() {
		t.Fatal("timeouts must not count as failures")
	}

	b.push(1)
	waitFor(t, "queued frame", func() bool { return d.Info().QueueLength == 1 })

	cause := errors.New("VIDIOC_DQBUF: no such device")
	b.setFailure(cause)

	select {
	case got := <-disconnected:
		if !errors.Is(got, cause) {
			t.Errorf("expected cause %v, got %v", cause, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
	<-d.Done()

	if d.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", d.State())
	}
	if !d.Enabled() {
		t.Error("expected enabled to stay set until Stop")
	}
	if _, err := d.AcquireFrame(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if got := d.Info().Stats.Failures; got != 3 {
		t.Errorf("expected 3 failures, got %d", got)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop after disconnect failed: %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected on restart, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpened, StateConfigured, StateStarted, StateDisconnected, StateStopped}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestDisconnectAtDefaultThreshold(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The backend would keep failing for at least ten acquisitions.
	b.setFailure(errors.New("VIDIOC_DQBUF: input/output error"))
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop after repeated failures")
	}

	if _, err := d.AcquireFrame(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := d.Info().Stats.Failures; got != 5 {
		t.Errorf("failures = %d, want 5 (capture must stop at the default threshold)", got)
	}
}

func TestDisconnectByCaller(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, nil)
	defer d.Close()

	if err := d.Disconnect(nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Disconnect before Start: expected ErrInvalidState, got %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := d.Disconnect(errors.New("node removed")); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture goroutine did not exit")
	}

	if d.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", d.State())
	}
	if got := d.Info().Stats.Failures; got != 0 {
		t.Errorf("expected no backend failures, got %d", got)
	}
	_, err := d.AcquireFrame()
	if !errors.Is(err, ErrDisconnected) || !strings.Contains(err.Error(), "node removed") {
		t.Errorf("expected ErrDisconnected with cause, got %v", err)
	}
	if err := d.Disconnect(nil); err != nil {
		t.Errorf("second Disconnect should be a no-op, got %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop after disconnect failed: %v", err)
	}
}

func TestConcurrentPollAndStop(t *testing.T) {
	b := newFakeBackend()
	d := openConfigured(t, b, &Options{QueueCapacity: 2})

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			b.push(1)
			time.Sleep(500 * time.Microsecond)
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			f, err := d.AcquireFrame()
			if err != nil {
				t.Errorf("AcquireFrame failed: %v", err)
				return
			}
			if f != nil {
				if err := d.ReleaseFrame(f); err != nil {
					t.Errorf("ReleaseFrame failed: %v", err)
					return
				}
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	close(stop)
	wg.Wait()

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	captured := int(d.Info().Stats.Captured)
	if got := b.totalReleased(); got != captured {
		t.Errorf("released %d frames, captured %d", got, captured)
	}
	b.mu.Lock()
	for f, n := range b.released {
		if n != 1 {
			t.Errorf("frame %d released %d times", f.Sequence, n)
		}
	}
	b.mu.Unlock()
}
