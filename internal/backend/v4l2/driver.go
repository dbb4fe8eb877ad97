// Package v4l2 is the Video4Linux2 camera driver. Enumeration goes through
// pkg/linuxav/v4l2; streaming uses mmap buffers via github.com/blackjack/webcam.
package v4l2

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/camerad/internal/camera"
	linuxav "github.com/smazurov/camerad/pkg/linuxav/v4l2"
)

// DriverName is the registry key of the V4L2 driver.
const DriverName = "v4l2"

// Defaults applied when Options leaves a field zero.
const (
	DefaultBuffers        = 4
	DefaultAcquireTimeout = time.Second
)

// Options configures backends created by the driver.
type Options struct {
	// Buffers is the number of mmap buffers requested from the kernel.
	Buffers uint32

	// AcquireTimeout bounds one wait for a frame. The kernel wait has
	// one second granularity; shorter values are rounded up.
	AcquireTimeout time.Duration

	// Logger for backend operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Driver enumerates V4L2 capture nodes.
type Driver struct {
	opts Options
}

// NewDriver returns a V4L2 driver.
func NewDriver(opts *Options) *Driver {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Buffers == 0 {
		o.Buffers = DefaultBuffers
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Driver{opts: o}
}

// Name implements camera.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Devices lists capture nodes that support streaming I/O. The stable by-id
// name is used as the identifier.
func (d *Driver) Devices() ([]camera.DeviceInfo, error) {
	found, err := linuxav.FindDevices()
	if err != nil {
		return nil, fmt.Errorf("enumerate v4l2 devices: %w", err)
	}

	devices := make([]camera.DeviceInfo, 0, len(found))
	for _, dev := range found {
		if !dev.CanStream() {
			continue
		}
		devices = append(devices, camera.DeviceInfo{
			ID:   dev.DeviceID,
			Name: dev.DeviceName,
			Path: dev.DevicePath,
		})
	}
	return devices, nil
}

// DeviceName implements camera.Driver.
func (d *Driver) DeviceName(id string) (string, error) {
	path, err := linuxav.ResolveDevice(id)
	if err != nil {
		return "", err
	}
	info, err := linuxav.QueryDevice(path)
	if err != nil {
		return "", err
	}
	return info.DeviceName, nil
}

// New returns an unopened backend for a device path, node name or stable ID.
func (d *Driver) New(id string) (camera.Backend, error) {
	path, err := linuxav.ResolveDevice(id)
	if err != nil {
		return nil, err
	}
	return newBackend(path, d.opts), nil
}

// Canonical resolves id to the device node it names, following by-id and
// by-path symlinks, so sessions can be matched against hotplug events.
func (d *Driver) Canonical(id string) (string, error) {
	path, err := linuxav.ResolveDevice(id)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	return path, nil
}

// specFromMode converts an enumerated mode to a camera spec.
func specFromMode(m linuxav.Mode) camera.Spec {
	return camera.Spec{
		Format: camera.PixelFormat(strings.TrimRight(m.FourCC(), " \x00")),
		Width:  int(m.Width),
		Height: int(m.Height),
		FPS:    roundFPS(m.Rate.FPS()),
	}
}

// roundFPS keeps two decimals so 30000/1001 reads as 29.97.
func roundFPS(fps float64) float64 {
	return float64(int64(fps*100+0.5)) / 100
}

// acquireTimeoutSeconds converts d to the whole seconds the kernel wait takes.
func acquireTimeoutSeconds(d time.Duration) uint32 {
	secs := uint32((d + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}
