package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(t *testing.T, path string, opts ...WatcherOption[Cameras]) *Watcher[Cameras] {
	t.Helper()
	opts = append([]WatcherOption[Cameras]{WithDebounce[Cameras](50 * time.Millisecond)}, opts...)
	return NewConfigWatcher(path, LoadCameras, quietLogger(), opts...)
}

func run(t *testing.T, w *Watcher[Cameras]) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	time.Sleep(50 * time.Millisecond)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "cameras.toml", "")
	w := newTestWatcher(t, path)

	received := make(chan Cameras, 1)
	w.OnReload(func(c Cameras) { received <- c })
	run(t, w)

	if err := os.WriteFile(path, []byte("[cameras.a]\ndriver = \"synthetic\"\ndevice = \"synthetic0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cams := <-received:
		if cams["a"].Driver != "synthetic" {
			t.Errorf("got %+v", cams)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherReloadsOnRename(t *testing.T) {
	path := writeFile(t, "cameras.toml", "")
	w := newTestWatcher(t, path)

	received := make(chan Cameras, 1)
	w.OnReload(func(c Cameras) { received <- c })
	run(t, w)

	tmp := filepath.Join(filepath.Dir(path), "cameras.toml.new")
	if err := os.WriteFile(tmp, []byte("[cameras.b]\ndriver = \"v4l2\"\ndevice = \"video0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cams := <-received:
		if _, ok := cams["b"]; !ok {
			t.Errorf("got %+v", cams)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeFile(t, "cameras.toml", "")
	w := newTestWatcher(t, path, WithDebounce[Cameras](200*time.Millisecond))

	var calls atomic.Int32
	w.OnReload(func(Cameras) { calls.Add(1) })
	run(t, w)

	for range 5 {
		if err := os.WriteFile(path, []byte("# edit\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(600 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("handler called %d times, want 1", got)
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	path := writeFile(t, "cameras.toml", "")
	w := newTestWatcher(t, path)

	var calls atomic.Int32
	w.OnReload(func(Cameras) { calls.Add(1) })
	run(t, w)

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("handler called %d times for unrelated file", got)
	}
}

func TestWatcherErrorHandlerAndUnsubscribe(t *testing.T) {
	path := writeFile(t, "cameras.toml", "")

	errCh := make(chan error, 1)
	w := newTestWatcher(t, path, WithErrorHandler[Cameras](func(err error) { errCh <- err }))

	var calls atomic.Int32
	unsubscribe := w.OnReload(func(Cameras) { calls.Add(1) })
	unsubscribe()
	run(t, w)

	if err := os.WriteFile(path, []byte("[cameras.a]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected a load error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for load error")
	}

	if err := os.WriteFile(path, []byte("[cameras.a]\ndriver = \"v4l2\"\ndevice = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("unsubscribed handler called %d times", got)
	}
}

func TestWatcherStopIdempotentBeforeStart(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "cameras.toml"), LoadCameras, nil)
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}
