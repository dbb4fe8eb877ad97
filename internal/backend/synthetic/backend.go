package synthetic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/camerad/internal/camera"
)

// Backend is one open synthetic camera.
type Backend struct {
	driver *Driver
	entry  *entry

	mu        sync.Mutex
	opened    bool
	streaming bool
	spec      camera.Spec
	buffers   [][]byte
	free      []int
	held      map[int]bool
	produced  uint64
	interval  time.Duration
	next      time.Time
}

// Open implements camera.Backend.
func (b *Backend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		return errors.New("synthetic: backend already open")
	}
	if err := b.driver.claim(b.entry); err != nil {
		return err
	}
	b.opened = true
	return nil
}

// SupportedSpecs implements camera.Backend.
func (b *Backend) SupportedSpecs() ([]camera.Spec, error) {
	modes := make([]camera.Spec, len(b.entry.cfg.Modes))
	copy(modes, b.entry.cfg.Modes)
	return modes, nil
}

// Init allocates the frame buffers for spec.
func (b *Backend) Init(spec camera.Spec) error {
	if b.entry.cfg.InitError != nil {
		return b.entry.cfg.InitError
	}
	size, err := frameSize(spec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return errors.New("synthetic: backend not open")
	}
	b.spec = spec
	b.buffers = make([][]byte, b.entry.cfg.Buffers)
	b.free = b.free[:0]
	for i := range b.buffers {
		b.buffers[i] = make([]byte, size)
		b.free = append(b.free, i)
	}
	b.held = make(map[int]bool)

	b.interval = time.Second / 30
	if spec.FPS > 0 {
		b.interval = time.Duration(float64(time.Second) / spec.FPS)
	}
	return nil
}

// StartCapture implements camera.Backend.
func (b *Backend) StartCapture() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buffers == nil {
		return errors.New("synthetic: not initialized")
	}
	if b.streaming {
		return errors.New("synthetic: already streaming")
	}
	b.streaming = true
	b.next = time.Now()
	return nil
}

// StopCapture implements camera.Backend.
func (b *Backend) StopCapture() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.streaming {
		return errors.New("synthetic: not streaming")
	}
	b.streaming = false
	return nil
}

// AcquireFrame waits for the next frame slot and fills a free buffer with a
// moving test pattern.
func (b *Backend) AcquireFrame(ctx context.Context) (*camera.Frame, error) {
	cfg := b.entry.cfg

	b.mu.Lock()
	if !b.streaming {
		b.mu.Unlock()
		return nil, errors.New("synthetic: not streaming")
	}
	wait := time.Until(b.next)
	b.mu.Unlock()

	timedOut := false
	if wait > cfg.AcquireTimeout {
		wait = cfg.AcquireTimeout
		timedOut = true
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, camera.ErrTimeout
		}
	}

	if b.entry.unplugged.Load() {
		return nil, ErrRemoved
	}
	if timedOut {
		return nil, camera.ErrTimeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entry.failNext.Load() > 0 && b.entry.failNext.Add(-1) >= 0 {
		return nil, errors.New("synthetic: injected acquire failure")
	}
	if cfg.FailAfter > 0 && b.produced >= cfg.FailAfter {
		return nil, fmt.Errorf("synthetic: injected failure after %d frames", cfg.FailAfter)
	}
	if len(b.free) == 0 {
		// Every buffer is held by the consumer
		b.next = time.Now().Add(b.interval)
		return nil, camera.ErrTimeout
	}

	idx := b.free[0]
	b.free = b.free[1:]
	b.held[idx] = true

	buf := b.buffers[idx]
	fillPattern(buf, b.spec, b.produced)
	b.produced++

	now := time.Now()
	b.next = b.next.Add(b.interval)
	if b.next.Before(now) {
		b.next = now.Add(b.interval)
	}

	return &camera.Frame{
		Planes:    [][]byte{buf},
		Format:    b.spec.Format,
		Width:     b.spec.Width,
		Height:    b.spec.Height,
		Timestamp: now,
		Index:     idx,
	}, nil
}

// ReleaseFrame returns the frame's buffer to the free list.
func (b *Backend) ReleaseFrame(f *camera.Frame) error {
	if f == nil {
		return errors.New("synthetic: nil frame")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.held[f.Index] {
		return fmt.Errorf("synthetic: buffer %d is not held", f.Index)
	}
	delete(b.held, f.Index)
	b.free = append(b.free, f.Index)
	return nil
}

// Close implements camera.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return errors.New("synthetic: backend not open")
	}
	b.opened = false
	b.streaming = false
	b.buffers = nil
	b.free = nil
	b.driver.release(b.entry)
	return nil
}

// Outstanding returns the number of buffers not yet released.
func (b *Backend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}

// Produced returns the number of frames generated since Open.
func (b *Backend) Produced() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.produced
}
