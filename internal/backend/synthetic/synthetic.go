// Package synthetic provides a camera driver that generates test pattern
// frames in memory. It backs tests and hosts without capture hardware, and
// can simulate unplugging a camera.
package synthetic

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camerad/internal/camera"
)

// DriverName is the registry key of the synthetic driver.
const DriverName = "synthetic"

// ErrRemoved is returned by AcquireFrame after Unplug.
var ErrRemoved = errors.New("synthetic: device removed")

// Defaults for Config fields left zero.
const (
	DefaultBuffers        = 4
	DefaultAcquireTimeout = 200 * time.Millisecond
)

// DefaultModes are advertised when Config.Modes is empty.
var DefaultModes = []camera.Spec{
	{Format: camera.FormatYUYV, Width: 320, Height: 240, FPS: 30},
	{Format: camera.FormatYUYV, Width: 640, Height: 480, FPS: 30},
	{Format: camera.FormatYUYV, Width: 640, Height: 480, FPS: 15},
	{Format: camera.FormatYUYV, Width: 1280, Height: 720, FPS: 30},
	{Format: camera.FormatRGB24, Width: 640, Height: 480, FPS: 30},
	{Format: camera.FormatRGB24, Width: 1920, Height: 1080, FPS: 30},
}

// Config describes one synthetic camera.
type Config struct {
	ID    string
	Name  string
	Modes []camera.Spec

	// Buffers is the number of frame buffers the backend cycles through.
	// AcquireFrame times out while all of them are held.
	Buffers int

	// AcquireTimeout bounds a single AcquireFrame wait.
	AcquireTimeout time.Duration

	// FailAfter makes every acquire fail once this many frames have been
	// produced. Zero disables it.
	FailAfter uint64

	// OpenError and InitError, when set, are returned by Open and Init.
	OpenError error
	InitError error
}

type entry struct {
	cfg       Config
	busy      bool
	unplugged atomic.Bool
	failNext  atomic.Int64
}

// Driver serves a fixed set of synthetic cameras.
type Driver struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// NewDriver returns a driver for cameras. With no arguments it serves a
// single camera "synthetic0".
func NewDriver(cameras ...Config) *Driver {
	if len(cameras) == 0 {
		cameras = []Config{{ID: "synthetic0"}}
	}

	d := &Driver{entries: make(map[string]*entry)}
	for i, c := range cameras {
		if c.ID == "" {
			c.ID = fmt.Sprintf("synthetic%d", i)
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("Synthetic Camera %d", i)
		}
		if len(c.Modes) == 0 {
			c.Modes = DefaultModes
		}
		if c.Buffers <= 0 {
			c.Buffers = DefaultBuffers
		}
		if c.AcquireTimeout <= 0 {
			c.AcquireTimeout = DefaultAcquireTimeout
		}
		d.order = append(d.order, c.ID)
		d.entries[c.ID] = &entry{cfg: c}
	}
	return d
}

// Name implements camera.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Devices lists cameras that are currently plugged in.
func (d *Driver) Devices() ([]camera.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	devices := make([]camera.DeviceInfo, 0, len(d.order))
	for _, id := range d.order {
		e := d.entries[id]
		if e.unplugged.Load() {
			continue
		}
		devices = append(devices, camera.DeviceInfo{ID: id, Name: e.cfg.Name})
	}
	return devices, nil
}

// DeviceName implements camera.Driver.
func (d *Driver) DeviceName(id string) (string, error) {
	e, err := d.lookup(id)
	if err != nil {
		return "", err
	}
	return e.cfg.Name, nil
}

// New implements camera.Driver.
func (d *Driver) New(id string) (camera.Backend, error) {
	e, err := d.lookup(id)
	if err != nil {
		return nil, err
	}
	return &Backend{driver: d, entry: e}, nil
}

// Unplug simulates removal of a camera. Open backends start failing every
// acquire until the device is closed.
func (d *Driver) Unplug(id string) error {
	e, err := d.lookup(id)
	if err != nil {
		return err
	}
	e.unplugged.Store(true)
	return nil
}

// FailNext makes the next n acquires on id fail with a backend error.
func (d *Driver) FailNext(id string, n int) error {
	e, err := d.lookup(id)
	if err != nil {
		return err
	}
	e.failNext.Store(int64(n))
	return nil
}

// Replug makes an unplugged camera available again.
func (d *Driver) Replug(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return fmt.Errorf("synthetic: unknown device %q", id)
	}
	e.unplugged.Store(false)
	return nil
}

func (d *Driver) lookup(id string) (*entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok || e.unplugged.Load() {
		return nil, fmt.Errorf("synthetic: unknown device %q", id)
	}
	return e, nil
}

func (d *Driver) claim(e *entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.unplugged.Load() {
		return ErrRemoved
	}
	if e.cfg.OpenError != nil {
		return e.cfg.OpenError
	}
	if e.busy {
		return fmt.Errorf("synthetic: %s is busy", e.cfg.ID)
	}
	e.busy = true
	return nil
}

func (d *Driver) release(e *entry) {
	d.mu.Lock()
	e.busy = false
	d.mu.Unlock()
}
