//go:build !linux

package v4l2

import (
	"context"

	"github.com/smazurov/camerad/internal/camera"
	linuxav "github.com/smazurov/camerad/pkg/linuxav/v4l2"
)

// Backend is unavailable on this platform; every call fails.
type Backend struct{}

func newBackend(string, Options) *Backend { return &Backend{} }

func (b *Backend) Open() error { return linuxav.ErrUnsupported }

func (b *Backend) SupportedSpecs() ([]camera.Spec, error) { return nil, linuxav.ErrUnsupported }

func (b *Backend) Init(camera.Spec) error { return linuxav.ErrUnsupported }

func (b *Backend) StartCapture() error { return linuxav.ErrUnsupported }

func (b *Backend) StopCapture() error { return linuxav.ErrUnsupported }

func (b *Backend) AcquireFrame(context.Context) (*camera.Frame, error) {
	return nil, linuxav.ErrUnsupported
}

func (b *Backend) ReleaseFrame(*camera.Frame) error { return linuxav.ErrUnsupported }

func (b *Backend) Close() error { return linuxav.ErrUnsupported }
