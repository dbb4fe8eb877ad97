package camera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend hands out frames pushed by the test and records releases.
type fakeBackend struct {
	specs   []Spec
	openErr error
	initErr error
	frames  chan *Frame

	mu           sync.Mutex
	fail         error
	released     map[*Frame]int
	calls        []string
	closed       bool
	lateReleases int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		specs: []Spec{
			{Format: FormatYUYV, Width: 320, Height: 240, FPS: 30},
			{Format: FormatYUYV, Width: 640, Height: 480, FPS: 30},
			{Format: FormatYUYV, Width: 1920, Height: 1080, FPS: 30},
		},
		frames:   make(chan *Frame, 64),
		released: make(map[*Frame]int),
	}
}

func (b *fakeBackend) record(call string) {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	b.mu.Unlock()
}

func (b *fakeBackend) Open() error {
	b.record("open")
	return b.openErr
}

func (b *fakeBackend) SupportedSpecs() ([]Spec, error) {
	return b.specs, nil
}

func (b *fakeBackend) Init(Spec) error {
	b.record("init")
	return b.initErr
}

func (b *fakeBackend) StartCapture() error {
	b.record("start")
	return nil
}

func (b *fakeBackend) StopCapture() error {
	b.record("stop")
	return nil
}

func (b *fakeBackend) Close() error {
	b.record("close")
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) AcquireFrame(ctx context.Context) (*Frame, error) {
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail != nil {
		time.Sleep(time.Millisecond)
		return nil, fail
	}

	select {
	case f := <-b.frames:
		return f, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	case <-time.After(5 * time.Millisecond):
		return nil, ErrTimeout
	}
}

func (b *fakeBackend) ReleaseFrame(f *Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.lateReleases++
		return errors.New("release after close")
	}
	b.released[f]++
	return nil
}

func (b *fakeBackend) setFailure(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

func (b *fakeBackend) push(n int) []*Frame {
	out := make([]*Frame, n)
	for i := range out {
		out[i] = &Frame{Planes: [][]byte{{byte(i)}}, Index: i}
		b.frames <- out[i]
	}
	return out
}

func (b *fakeBackend) releaseCount(f *Frame) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released[f]
}

func (b *fakeBackend) totalReleased() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.released {
		n += c
	}
	return n
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type fakeDriver struct {
	backend *fakeBackend
	newErr  error
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake0", Name: "Fake Camera"}}, nil
}

func (d *fakeDriver) DeviceName(id string) (string, error) {
	if id != "fake0" {
		return "", errors.New("no such device")
	}
	return "Fake Camera", nil
}

func (d *fakeDriver) New(string) (Backend, error) {
	if d.newErr != nil {
		return nil, d.newErr
	}
	return d.backend, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
