package camera

import "context"

// Backend is the capability set a platform driver provides for one physical
// device. The Device serializes lifecycle calls; AcquireFrame is only ever
// called from the capture goroutine, and ReleaseFrame calls are serialized by
// the device's acquisition lock.
type Backend interface {
	// Open claims exclusive access to the hardware.
	Open() error

	// SupportedSpecs enumerates every format, size and rate combination the
	// hardware advertises, in a stable order.
	SupportedSpecs() ([]Spec, error)

	// Init configures the hardware for spec before streaming.
	Init(spec Spec) error

	// StartCapture begins hardware streaming.
	StartCapture() error

	// StopCapture ends hardware streaming.
	StopCapture() error

	// AcquireFrame waits up to a backend-defined timeout for the next frame.
	// It returns ErrTimeout when none arrived and should return early once ctx
	// is cancelled.
	AcquireFrame(ctx context.Context) (*Frame, error)

	// ReleaseFrame returns a frame's buffer to the backend for reuse.
	ReleaseFrame(f *Frame) error

	// Close releases all hardware resources.
	Close() error
}

// DeviceInfo describes an enumerated device.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Driver enumerates the devices of one platform and creates backends for
// them. The core only passes identifiers through; it never interprets names.
type Driver interface {
	// Name is the registry key of the driver, e.g. "v4l2".
	Name() string

	// Devices lists the identifiers currently present.
	Devices() ([]DeviceInfo, error)

	// DeviceName returns the display name for id.
	DeviceName(id string) (string, error)

	// New returns an unopened backend for id.
	New(id string) (Backend, error)
}
