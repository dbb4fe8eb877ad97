package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/events"
)

// Hotplug actions handled by HandleHotplug.
const (
	actionAdd    = "add"
	actionRemove = "remove"
)

// HandleHotplug reacts to a device node appearing or disappearing.
//
// On remove, capturing sessions on that node are marked disconnected and
// idle ones are closed. On add, configured cameras without a usable session
// are reopened, replacing any disconnected session. Cameras configured by an
// identifier that does not resolve yet are retried in the background every
// HotplugSettle, up to HotplugRetries times.
func (m *Manager) HandleHotplug(ev events.DeviceHotplugEvent) {
	switch ev.Action {
	case actionRemove:
		m.nodeRemoved(ev.Node)
	case actionAdd:
		pending, err := m.nodeAdded(m.ctx, ev.Node)
		if err != nil {
			m.logger.Warn("Failed to reopen cameras after hotplug", "node", ev.Node, "error", err)
		}
		if pending > 0 && m.ctx.Err() == nil {
			m.wg.Add(1)
			go m.retryAdded(ev.Node)
		}
	}
}

func (m *Manager) retryAdded(node string) {
	defer m.wg.Done()

	for attempt := 1; attempt <= m.retries; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.settle):
		}

		pending, err := m.nodeAdded(m.ctx, node)
		if err != nil {
			m.logger.Warn("Failed to reopen cameras after hotplug", "node", node, "attempt", attempt, "error", err)
		}
		if pending == 0 {
			return
		}
		m.logger.Debug("Camera identifiers not resolvable yet", "node", node, "pending", pending, "attempt", attempt)
	}
	m.logger.Warn("Gave up resolving cameras after device add", "node", node, "attempts", m.retries)
}

func (m *Manager) nodeRemoved(node string) {
	for _, s := range m.sessionsOn(node) {
		cause := fmt.Errorf("device node %s removed", node)
		err := s.Device.Disconnect(cause)
		if errors.Is(err, camera.ErrInvalidState) {
			// Not capturing; nothing to wait for.
			m.logger.Info("Closing idle camera after device removal", "camera", s.CameraID, "node", node)
			_ = m.Close(s.CameraID)
		}
	}
}

// nodeAdded reopens the desired cameras on node. pending counts desired
// cameras without a live session whose identifier did not resolve, so they
// may still turn out to be on node.
func (m *Manager) nodeAdded(ctx context.Context, node string) (pending int, err error) {
	desired := m.Desired()

	var errs []error
	for _, id := range desired.IDs() {
		cfg := desired[id]
		driver, err := m.Driver(cfg.Driver)
		if err != nil {
			continue
		}
		resolved, ok := resolve(driver, cfg.Device)
		if !ok {
			if s, err := m.Get(id); err != nil || s.Device.Disconnected() {
				pending++
			}
			continue
		}
		if resolved != node {
			continue
		}

		if s, err := m.Get(id); err == nil {
			if !s.Device.Disconnected() {
				continue
			}
			m.logger.Info("Replacing disconnected camera session", "camera", id, "session", s.ID)
			_ = m.Close(id)
		}
		if err := m.ensure(ctx, id, cfg); err != nil {
			errs = append(errs, fmt.Errorf("camera %s: %w", id, err))
		}
	}
	return pending, errors.Join(errs...)
}

func (m *Manager) sessionsOn(node string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Node == node {
			out = append(out, s)
		}
	}
	return out
}
