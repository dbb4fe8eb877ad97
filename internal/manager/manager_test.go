package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/camerad/internal/backend/synthetic"
	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/config"
	"github.com/smazurov/camerad/internal/events"
)

func newTestManager(t *testing.T, cams ...synthetic.Config) (*Manager, *synthetic.Driver, *events.Bus) {
	t.Helper()
	if len(cams) == 0 {
		cams = []synthetic.Config{{ID: "cam0"}, {ID: "cam1"}}
	}
	bus := events.New()
	drv := synthetic.NewDriver(cams...)
	m := New(bus, &Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	m.RegisterDriver(drv)
	t.Cleanup(func() {
		if err := m.Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return m, drv, bus
}

func synthCamera(device string) config.CameraConfig {
	return config.CameraConfig{Driver: synthetic.DriverName, Device: device, Width: 320, Height: 240, FPS: 60}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenStartStopClose(t *testing.T) {
	m, _, bus := newTestManager(t)

	opened := make(chan events.CameraOpenedEvent, 1)
	closed := make(chan events.CameraClosedEvent, 1)
	defer bus.Subscribe(func(e events.CameraOpenedEvent) { opened <- e })()
	defer bus.Subscribe(func(e events.CameraClosedEvent) { closed <- e })()

	if !m.AllClosed() {
		t.Fatal("expected no sessions")
	}

	s, err := m.Open(context.Background(), "front", synthCamera("cam0"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session ID %q is not a UUID: %v", s.ID, err)
	}
	if spec, _ := s.Device.Spec(); spec.Width != 320 || spec.Height != 240 {
		t.Errorf("negotiated %v", spec)
	}

	select {
	case e := <-opened:
		if e.CameraID != "front" || e.SessionID != s.ID || e.Driver != synthetic.DriverName {
			t.Errorf("opened event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no opened event")
	}

	if m.AnyPlaying() {
		t.Error("nothing should be playing before Start")
	}
	if err := m.Start("front"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.AnyPlaying() {
		t.Error("expected a playing camera")
	}
	waitFor(t, "frames", func() bool { return s.Device.Info().Stats.Captured > 0 })

	infos := m.List()
	if len(infos) != 1 || infos[0].CameraID != "front" || infos[0].Status.State != camera.StateStarted {
		t.Errorf("List = %+v", infos)
	}

	if err := m.Stop("front"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Close("front"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case e := <-closed:
		if e.SessionID != s.ID {
			t.Errorf("closed event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no closed event")
	}

	if !m.AllClosed() {
		t.Error("expected all closed")
	}
	if _, err := m.Get("front"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Get after Close: %v", err)
	}
	if err := m.Start("front"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Start after Close: %v", err)
	}
}

func TestOpenEnforcesOneSessionPerDevice(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, "a", synthCamera("cam0")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(ctx, "b", synthCamera("cam0")); !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Errorf("second open of same device: got %v, want ErrDeviceUnavailable", err)
	}
	if _, err := m.Open(ctx, "a", synthCamera("cam1")); !errors.Is(err, ErrCameraExists) {
		t.Errorf("reuse of camera ID: got %v, want ErrCameraExists", err)
	}
	if _, err := m.Open(ctx, "b", synthCamera("cam1")); err != nil {
		t.Errorf("different device should open: %v", err)
	}

	// Closing releases the claim.
	if err := m.Close("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(ctx, "c", synthCamera("cam0")); err != nil {
		t.Errorf("reopen after close: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, "x", config.CameraConfig{Driver: "dshow", Device: "0"}); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("unknown driver: %v", err)
	}
	if _, err := m.Open(ctx, "x", config.CameraConfig{Driver: synthetic.DriverName}); err == nil {
		t.Error("expected validation error")
	}

	bad := synthCamera("cam0")
	bad.Format = "H264"
	if _, err := m.Open(ctx, "x", bad); !errors.Is(err, camera.ErrUnsupportedFormat) {
		t.Errorf("unsupported format: %v", err)
	}
	// A failed open must not leave the device claimed.
	if _, err := m.Open(ctx, "x", synthCamera("cam0")); err != nil {
		t.Errorf("open after failed open: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Open(cancelled, "y", synthCamera("cam1")); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: %v", err)
	}
}

func TestCloseAll(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for id, dev := range map[string]string{"a": "cam0", "b": "cam1"} {
		if _, err := m.Open(ctx, id, synthCamera(dev)); err != nil {
			t.Fatal(err)
		}
		if err := m.Start(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if !m.AllClosed() || m.AnyPlaying() {
		t.Error("expected nothing open after CloseAll")
	}
}

func TestDisconnectPublished(t *testing.T) {
	m, drv, bus := newTestManager(t, synthetic.Config{ID: "cam0", AcquireTimeout: 20 * time.Millisecond})

	disconnected := make(chan events.CameraDisconnectedEvent, 1)
	defer bus.Subscribe(func(e events.CameraDisconnectedEvent) { disconnected <- e })()

	cfg := synthCamera("cam0")
	cfg.FailureThreshold = 2
	if _, err := m.Open(context.Background(), "front", cfg); err != nil {
		t.Fatal(err)
	}
	if err := m.Start("front"); err != nil {
		t.Fatal(err)
	}
	if err := drv.Unplug("cam0"); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-disconnected:
		if e.CameraID != "front" || e.Reason == "" {
			t.Errorf("disconnected event = %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no disconnected event")
	}
	if m.AnyPlaying() {
		t.Error("disconnected camera should not count as playing")
	}
}

func TestDriversRegistry(t *testing.T) {
	m, _, _ := newTestManager(t)

	if got := m.Drivers(); len(got) != 1 || got[0] != synthetic.DriverName {
		t.Errorf("Drivers = %v", got)
	}
	d, err := m.Driver(synthetic.DriverName)
	if err != nil {
		t.Fatal(err)
	}
	devices, err := d.Devices()
	if err != nil || len(devices) != 2 {
		t.Errorf("Devices = %v, %v", devices, err)
	}
}
