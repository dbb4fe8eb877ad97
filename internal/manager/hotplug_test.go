package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/camerad/internal/backend/synthetic"
	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/config"
	"github.com/smazurov/camerad/internal/events"
)

func TestHotplugRemoveDisconnectsCapturingSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	cfg := synthCamera("cam0")
	cfg.Autostart = true
	if err := m.Apply(context.Background(), config.Cameras{"front": cfg}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get("front")

	m.HandleHotplug(events.DeviceHotplugEvent{Action: "remove", Node: "cam0"})

	select {
	case <-s.Device.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not exit after removal")
	}
	if s.Device.State() != camera.StateDisconnected {
		t.Errorf("state = %s, want disconnected", s.Device.State())
	}
}

func TestHotplugRemoveClosesIdleSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	if err := m.Apply(context.Background(), config.Cameras{"front": synthCamera("cam0")}); err != nil {
		t.Fatal(err)
	}
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "remove", Node: "cam0"})

	if !m.AllClosed() {
		t.Error("idle session should be closed on removal")
	}
}

func TestHotplugAddReopens(t *testing.T) {
	m, drv, _ := newTestManager(t, synthetic.Config{ID: "cam0"})

	cfg := synthCamera("cam0")
	cfg.Autostart = true
	if err := m.Apply(context.Background(), config.Cameras{"front": cfg}); err != nil {
		t.Fatal(err)
	}
	old, _ := m.Get("front")

	if err := drv.Unplug("cam0"); err != nil {
		t.Fatal(err)
	}
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "remove", Node: "cam0"})
	<-old.Device.Done()

	if err := drv.Replug("cam0"); err != nil {
		t.Fatal(err)
	}
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "add", Node: "cam0"})

	s, err := m.Get("front")
	if err != nil {
		t.Fatalf("camera not reopened: %v", err)
	}
	if s.ID == old.ID {
		t.Error("expected a new session after replug")
	}
	if s.Device.State() != camera.StateStarted {
		t.Errorf("state = %s, want started", s.Device.State())
	}
	if old.Device.State() != camera.StateClosed {
		t.Errorf("old session state = %s, want closed", old.Device.State())
	}
}

// linkedDriver serves synthetic cameras under a stable alias whose
// resolution fails while failures is positive, like a by-id symlink that udev
// has not created yet.
type linkedDriver struct {
	*synthetic.Driver
	alias    map[string]string
	failures atomic.Int32
}

func (d *linkedDriver) target(id string) string {
	if real, ok := d.alias[id]; ok {
		return real
	}
	return id
}

func (d *linkedDriver) Canonical(id string) (string, error) {
	if d.failures.Add(-1) >= 0 {
		return "", errors.New("no such device link")
	}
	return d.target(id), nil
}

func (d *linkedDriver) DeviceName(id string) (string, error) {
	return d.Driver.DeviceName(d.target(id))
}

func (d *linkedDriver) New(id string) (camera.Backend, error) {
	return d.Driver.New(d.target(id))
}

func TestHotplugAddRetriesUnresolvedIdentifier(t *testing.T) {
	drv := &linkedDriver{
		Driver: synthetic.NewDriver(synthetic.Config{ID: "cam0"}),
		alias:  map[string]string{"usb-cam0": "cam0"},
	}
	m := New(events.New(), &Options{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		HotplugSettle: 10 * time.Millisecond,
	})
	m.RegisterDriver(drv)
	t.Cleanup(func() { _ = m.Shutdown() })

	cfg := synthCamera("usb-cam0")
	cfg.Autostart = true
	if err := m.Apply(context.Background(), config.Cameras{"front": cfg}); err != nil {
		t.Fatal(err)
	}
	old, err := m.Get("front")
	if err != nil {
		t.Fatal(err)
	}
	if old.Node != "cam0" {
		t.Fatalf("node = %q, want cam0", old.Node)
	}

	if err := drv.Unplug("cam0"); err != nil {
		t.Fatal(err)
	}
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "remove", Node: "cam0"})
	<-old.Device.Done()

	if err := drv.Replug("cam0"); err != nil {
		t.Fatal(err)
	}
	// The add event arrives before the alias resolves.
	drv.failures.Store(2)
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "add", Node: "cam0"})

	waitFor(t, "camera reopened after alias resolved", func() bool {
		s, err := m.Get("front")
		return err == nil && s.ID != old.ID && s.Device.State() == camera.StateStarted
	})
}

func TestHotplugAddRetryStopsOnShutdown(t *testing.T) {
	drv := &linkedDriver{
		Driver: synthetic.NewDriver(synthetic.Config{ID: "cam0"}),
		alias:  map[string]string{"usb-cam0": "cam0"},
	}
	m := New(events.New(), &Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		HotplugSettle:  time.Hour,
		HotplugRetries: 3,
	})
	m.RegisterDriver(drv)

	m.mu.Lock()
	m.desired = config.Cameras{"front": synthCamera("usb-cam0")}
	m.mu.Unlock()

	drv.failures.Store(100)
	m.HandleHotplug(events.DeviceHotplugEvent{Action: "add", Node: "cam0"})

	done := make(chan error, 1)
	go func() { done <- m.Shutdown() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown waited for the hotplug retry")
	}
}

func TestHotplugViaBus(t *testing.T) {
	m, _, bus := newTestManager(t)

	if err := m.Apply(context.Background(), config.Cameras{"front": synthCamera("cam0")}); err != nil {
		t.Fatal(err)
	}
	bus.Publish(events.DeviceHotplugEvent{Action: "remove", Node: "cam0", Subsystem: "video4linux"})

	waitFor(t, "session closed by bus event", m.AllClosed)
}
