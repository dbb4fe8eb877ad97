package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/camerad/internal/camera"
)

// CameraConfig is one [cameras.<id>] table of cameras.toml.
type CameraConfig struct {
	Driver           string  `toml:"driver" json:"driver"`
	Device           string  `toml:"device" json:"device"`
	Format           string  `toml:"format,omitempty" json:"format,omitempty"`
	Width            int     `toml:"width,omitempty" json:"width,omitempty"`
	Height           int     `toml:"height,omitempty" json:"height,omitempty"`
	FPS              float64 `toml:"fps,omitempty" json:"fps,omitempty"`
	QueueCapacity    int     `toml:"queue_capacity,omitempty" json:"queue_capacity,omitempty"`
	FailureThreshold int     `toml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`
	Autostart        bool    `toml:"autostart" json:"autostart"`
}

// Spec returns the requested capture spec. Unset fields are left zero for
// negotiation.
func (c CameraConfig) Spec() camera.Spec {
	return camera.Spec{
		Format: camera.PixelFormat(c.Format),
		Width:  c.Width,
		Height: c.Height,
		FPS:    c.FPS,
	}
}

// Validate checks the fields that cannot be negotiated.
func (c CameraConfig) Validate() error {
	var errs []error
	if c.Driver == "" {
		errs = append(errs, errors.New("driver is required"))
	}
	if c.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	if c.Width < 0 || c.Height < 0 || c.FPS < 0 {
		errs = append(errs, errors.New("width, height and fps must not be negative"))
	}
	if c.QueueCapacity < 0 || c.FailureThreshold < 0 {
		errs = append(errs, errors.New("queue_capacity and failure_threshold must not be negative"))
	}
	return errors.Join(errs...)
}

// Cameras is the parsed content of cameras.toml keyed by camera ID.
type Cameras map[string]CameraConfig

// IDs returns the camera IDs in sorted order.
func (c Cameras) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type camerasFile struct {
	Cameras Cameras `toml:"cameras"`
}

// LoadCameras reads camera definitions from path. A missing file yields an
// empty set so the daemon can start before any camera is configured.
func LoadCameras(path string) (Cameras, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Cameras{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cameras file: %w", err)
	}
	return ParseCameras(data)
}

// ParseCameras decodes cameras.toml content and validates every entry.
func ParseCameras(data []byte) (Cameras, error) {
	var file camerasFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cameras file: %w", err)
	}
	if file.Cameras == nil {
		return Cameras{}, nil
	}

	var errs []error
	for _, id := range file.Cameras.IDs() {
		if err := file.Cameras[id].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("camera %q: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return file.Cameras, nil
}
