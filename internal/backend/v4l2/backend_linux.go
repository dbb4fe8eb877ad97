//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/smazurov/camerad/internal/camera"
	linuxav "github.com/smazurov/camerad/pkg/linuxav/v4l2"
)

// Backend streams from one V4L2 node. Frames are copied out of the mmap
// buffer and the kernel buffer is requeued immediately, so frames held by
// the application stay valid after streaming stops.
type Backend struct {
	path    string
	opts    Options
	logger  *slog.Logger
	timeout uint32

	mu     sync.Mutex
	cam    *webcam.Webcam
	spec   camera.Spec
	frames sync.Pool
}

func newBackend(path string, opts Options) *Backend {
	return &Backend{
		path:    path,
		opts:    opts,
		logger:  opts.Logger.With("component", "v4l2", "path", path),
		timeout: acquireTimeoutSeconds(opts.AcquireTimeout),
	}
}

// Open implements camera.Backend.
func (b *Backend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam != nil {
		return errors.New("v4l2: backend already open")
	}
	cam, err := webcam.Open(b.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", b.path, err)
	}
	b.cam = cam
	return nil
}

// SupportedSpecs enumerates every format, size and interval the node
// advertises. If interval enumeration fails the sizes reported by the
// streaming library are used with an unspecified rate.
func (b *Backend) SupportedSpecs() ([]camera.Spec, error) {
	modes, err := linuxav.EnumerateModes(b.path)
	if err == nil && len(modes) > 0 {
		specs := make([]camera.Spec, 0, len(modes))
		for _, m := range modes {
			specs = append(specs, specFromMode(m))
		}
		return specs, nil
	}
	if err != nil {
		b.logger.Debug("Mode enumeration failed, falling back to frame sizes", "error", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cam == nil {
		return nil, errors.New("v4l2: backend not open")
	}

	return sizeSpecs(b.cam.GetSupportedFormats(), b.cam.GetSupportedFrameSizes), nil
}

// sizeSpecs lists one spec per format and frame size. Formats come from a
// map, so they are sorted by FourCC code to keep the order stable.
func sizeSpecs(formats map[webcam.PixelFormat]string, sizes func(webcam.PixelFormat) []webcam.FrameSize) []camera.Spec {
	var specs []camera.Spec
	for _, pf := range slices.Sorted(maps.Keys(formats)) {
		format := specFromMode(linuxav.Mode{PixelFormat: uint32(pf)}).Format
		for _, size := range sizes(pf) {
			specs = append(specs, camera.Spec{
				Format: format,
				Width:  int(size.MaxWidth),
				Height: int(size.MaxHeight),
			})
		}
	}
	return specs
}

// Init sets the image format, frame rate and buffer count.
func (b *Backend) Init(spec camera.Spec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam == nil {
		return errors.New("v4l2: backend not open")
	}

	pf := webcam.PixelFormat(linuxav.FourCC(string(spec.Format)))
	got, w, h, err := b.cam.SetImageFormat(pf, uint32(spec.Width), uint32(spec.Height))
	if err != nil {
		return fmt.Errorf("set format %s: %w", spec, err)
	}
	if got != pf || int(w) != spec.Width || int(h) != spec.Height {
		return fmt.Errorf("driver chose %s %dx%d instead of %s",
			linuxav.FormatFourCC(uint32(got)), w, h, spec)
	}

	if spec.FPS > 0 {
		if err := b.cam.SetFramerate(float32(spec.FPS)); err != nil {
			// Many UVC devices only accept the default interval
			b.logger.Debug("Failed to set frame rate", "fps", spec.FPS, "error", err)
		}
	}
	if err := b.cam.SetBufferCount(b.opts.Buffers); err != nil {
		return fmt.Errorf("set buffer count: %w", err)
	}

	b.spec = spec
	return nil
}

// StartCapture implements camera.Backend.
func (b *Backend) StartCapture() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam == nil {
		return errors.New("v4l2: backend not open")
	}
	return b.cam.StartStreaming()
}

// StopCapture implements camera.Backend.
func (b *Backend) StopCapture() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam == nil {
		return errors.New("v4l2: backend not open")
	}
	return b.cam.StopStreaming()
}

// AcquireFrame waits for the kernel to fill a buffer, copies it out and
// requeues the buffer. The wait cannot be interrupted; ctx is checked
// between waits.
func (b *Backend) AcquireFrame(ctx context.Context) (*camera.Frame, error) {
	if ctx.Err() != nil {
		return nil, camera.ErrTimeout
	}

	b.mu.Lock()
	cam, spec := b.cam, b.spec
	b.mu.Unlock()
	if cam == nil {
		return nil, errors.New("v4l2: backend not open")
	}

	err := cam.WaitForFrame(b.timeout)
	var timeout *webcam.Timeout
	if errors.As(err, &timeout) {
		return nil, camera.ErrTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("wait for frame: %w", err)
	}

	data, index, err := cam.GetFrame()
	if err != nil {
		return nil, fmt.Errorf("dequeue buffer: %w", err)
	}
	if len(data) == 0 {
		_ = cam.ReleaseFrame(index)
		return nil, camera.ErrTimeout
	}

	buf := b.buffer(len(data))
	copy(buf, data)
	if err := cam.ReleaseFrame(index); err != nil {
		return nil, fmt.Errorf("requeue buffer %d: %w", index, err)
	}

	return &camera.Frame{
		Planes:    [][]byte{buf},
		Format:    spec.Format,
		Width:     spec.Width,
		Height:    spec.Height,
		Timestamp: time.Now(),
		Index:     int(index),
	}, nil
}

// ReleaseFrame returns the frame's copy buffer to the pool.
func (b *Backend) ReleaseFrame(f *camera.Frame) error {
	if f == nil {
		return errors.New("v4l2: nil frame")
	}
	if data := f.Data(); data != nil {
		b.frames.Put(data[:cap(data)])
	}
	return nil
}

// Close implements camera.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cam == nil {
		return errors.New("v4l2: backend not open")
	}
	err := b.cam.Close()
	b.cam = nil
	return err
}

func (b *Backend) buffer(n int) []byte {
	if v := b.frames.Get(); v != nil {
		if buf := v.([]byte); cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]byte, n)
}
