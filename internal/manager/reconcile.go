package manager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/config"
)

// Apply reconciles the open sessions with cameras. Sessions whose camera was
// removed or whose definition changed are closed; cameras without a session
// are opened and started when autostart is set. Every camera is attempted;
// failures are joined into the returned error.
func (m *Manager) Apply(ctx context.Context, cameras config.Cameras) error {
	m.mu.Lock()
	m.desired = maps.Clone(cameras)
	var stale []string
	for id, s := range m.sessions {
		if want, ok := cameras[id]; !ok || want != s.Config {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	var errs []error
	slices.Sort(stale)
	for _, id := range stale {
		m.logger.Info("Closing camera removed or changed in config", "camera", id)
		if err := m.Close(id); err != nil && !errors.Is(err, ErrCameraNotFound) {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}

	for _, id := range cameras.IDs() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.ensure(ctx, id, cameras[id]); err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", id, err))
		}
	}

	m.logger.Info("Camera configuration applied", "cameras", len(cameras), "closed", len(stale), "errors", len(errs))
	return errors.Join(errs...)
}

// Desired returns the camera definitions last passed to Apply.
func (m *Manager) Desired() config.Cameras {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.desired)
}

// ensure opens id if it has no session and starts it when autostart is set.
func (m *Manager) ensure(ctx context.Context, id string, cfg config.CameraConfig) error {
	s, err := m.Get(id)
	if err != nil {
		s, err = m.Open(ctx, id, cfg)
		if err != nil {
			return err
		}
	}
	if !cfg.Autostart {
		return nil
	}

	switch s.Device.State() {
	case camera.StateConfigured, camera.StateStopped:
		return s.Device.Start()
	default:
		return nil
	}
}
