// Package cmd holds the camerad subcommands.
package cmd

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/smazurov/camerad/internal/backend/synthetic"
	"github.com/smazurov/camerad/internal/backend/v4l2"
	"github.com/smazurov/camerad/internal/camera"
)

// DriverOptions selects and configures the camera drivers.
type DriverOptions struct {
	// SyntheticCameras is the number of test pattern cameras to serve.
	SyntheticCameras int

	V4L2Buffers        int
	V4L2AcquireTimeout time.Duration

	Logger *slog.Logger
}

// Drivers returns the drivers available on this platform. V4L2 is only
// offered on Linux.
func Drivers(opts DriverOptions) []camera.Driver {
	var drivers []camera.Driver

	if runtime.GOOS == "linux" {
		drivers = append(drivers, v4l2.NewDriver(&v4l2.Options{
			Buffers:        uint32(max(opts.V4L2Buffers, 0)),
			AcquireTimeout: opts.V4L2AcquireTimeout,
			Logger:         opts.Logger,
		}))
	}

	if opts.SyntheticCameras > 0 {
		cams := make([]synthetic.Config, opts.SyntheticCameras)
		for i := range cams {
			cams[i] = synthetic.Config{ID: fmt.Sprintf("synthetic%d", i)}
		}
		drivers = append(drivers, synthetic.NewDriver(cams...))
	}

	return drivers
}

// findDriver returns the driver called name.
func findDriver(drivers []camera.Driver, name string) (camera.Driver, error) {
	for _, d := range drivers {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown driver %q", name)
}
