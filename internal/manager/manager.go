// Package manager owns the open camera sessions of the daemon. It maps
// configured camera IDs to devices, enforces one open session per physical
// device, reconciles sessions with cameras.toml and reacts to hotplug events.
package manager

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/config"
	"github.com/smazurov/camerad/internal/events"
)

// Errors returned by Manager operations. Device errors are passed through
// unchanged and match the camera sentinels.
var (
	ErrCameraNotFound = errors.New("camera not found")
	ErrCameraExists   = errors.New("camera already open")
	ErrUnknownDriver  = errors.New("unknown driver")
)

// Canonicalizer is implemented by drivers whose device identifiers have
// several spellings. The canonical form identifies the physical device and
// matches hotplug node names.
type Canonicalizer interface {
	Canonical(id string) (string, error)
}

// Options configures a Manager.
type Options struct {
	// Logger for manager operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// DeviceLogger is handed to every device. If nil, Logger is used.
	DeviceLogger *slog.Logger

	// HotplugSettle is the wait between reopen attempts after a device add
	// whose configured identifier did not resolve yet (udev links appear
	// after the kernel event). Defaults to DefaultHotplugSettle.
	HotplugSettle time.Duration

	// HotplugRetries bounds those attempts. Defaults to DefaultHotplugRetries.
	HotplugRetries int
}

// Defaults for Options fields left zero.
const (
	DefaultHotplugSettle  = time.Second
	DefaultHotplugRetries = 5
)

// Manager is safe for concurrent use.
type Manager struct {
	bus          *events.Bus
	logger       *slog.Logger
	deviceLogger *slog.Logger

	mu       sync.RWMutex
	drivers  map[string]camera.Driver
	sessions map[string]*Session
	claims   map[string]string // driver/node -> camera ID, including opens in flight
	desired  config.Cameras

	unsubscribe func()

	settle  time.Duration
	retries int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a manager publishing on bus. Hotplug events published on the
// same bus are handled automatically until Shutdown.
func New(bus *events.Bus, opts *Options) *Manager {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.DeviceLogger == nil {
		o.DeviceLogger = o.Logger
	}
	if o.HotplugSettle <= 0 {
		o.HotplugSettle = DefaultHotplugSettle
	}
	if o.HotplugRetries <= 0 {
		o.HotplugRetries = DefaultHotplugRetries
	}

	m := &Manager{
		bus:          bus,
		logger:       o.Logger,
		deviceLogger: o.DeviceLogger,
		drivers:      make(map[string]camera.Driver),
		sessions:     make(map[string]*Session),
		claims:       make(map[string]string),
		desired:      config.Cameras{},
		unsubscribe:  func() {},
		settle:       o.HotplugSettle,
		retries:      o.HotplugRetries,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	if bus != nil {
		m.unsubscribe = bus.Subscribe(m.HandleHotplug)
	}
	return m
}

// RegisterDriver makes driver available under its name. A later driver with
// the same name replaces the earlier one.
func (m *Manager) RegisterDriver(driver camera.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[driver.Name()] = driver
	m.logger.Debug("Driver registered", "driver", driver.Name())
}

// Driver returns the registered driver called name.
func (m *Manager) Driver(name string) (camera.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return d, nil
}

// Drivers returns the registered driver names in sorted order.
func (m *Manager) Drivers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.drivers))
}

// Open creates a session for camera id. It fails with ErrCameraExists when id
// is already open and with camera.ErrDeviceUnavailable when another camera
// holds the same physical device.
func (m *Manager) Open(ctx context.Context, id string, cfg config.CameraConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("camera %q: %w", id, err)
	}
	driver, err := m.Driver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	node := canonical(driver, cfg.Device)
	key := driver.Name() + "/" + node

	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCameraExists, id)
	}
	if owner, ok := m.claims[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is held by camera %q", camera.ErrDeviceUnavailable, node, owner)
	}
	m.claims[key] = id
	m.mu.Unlock()

	s, err := m.open(ctx, id, cfg, driver, node, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.claims, key)
		return nil, err
	}
	m.sessions[id] = s
	return s, nil
}

// open runs without m.mu held; the claim on key reserves the device.
func (m *Manager) open(ctx context.Context, id string, cfg config.CameraConfig, driver camera.Driver, node, key string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		CameraID: id,
		Config:   cfg,
		Node:     node,
		key:      key,
	}
	logger := m.logger.With("camera", id, "session", s.ID)

	dev, err := camera.Open(driver, cfg.Device, cfg.Spec(), &camera.Options{
		QueueCapacity:    cfg.QueueCapacity,
		FailureThreshold: cfg.FailureThreshold,
		Logger:           m.deviceLogger.With("camera", id),
		OnStateChange: func(_ string, oldState, newState camera.State) {
			m.publish(events.CameraStateChangedEvent{
				CameraID:  id,
				SessionID: s.ID,
				OldState:  string(oldState),
				NewState:  string(newState),
				Timestamp: timestamp(),
			})
		},
		OnDisconnect: func(_ string, cause error) {
			logger.Warn("Camera disconnected", "error", cause)
			m.publish(events.CameraDisconnectedEvent{
				CameraID:  id,
				SessionID: s.ID,
				Reason:    cause.Error(),
				Timestamp: timestamp(),
			})
		},
	})
	if err != nil {
		logger.Warn("Failed to open camera", "driver", cfg.Driver, "device", cfg.Device, "error", err)
		return nil, err
	}

	s.Device = dev
	s.OpenedAt = time.Now()
	spec, _ := dev.Spec()

	logger.Info("Camera opened", "driver", cfg.Driver, "device", cfg.Device, "spec", spec.String())
	m.publish(events.CameraOpenedEvent{
		CameraID:  id,
		SessionID: s.ID,
		Driver:    cfg.Driver,
		Device:    cfg.Device,
		Spec:      spec.String(),
		Timestamp: timestamp(),
	})
	return s, nil
}

// Get returns the session of camera id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	return s, nil
}

// List returns a snapshot of every open session sorted by camera ID.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	sessions := slices.Collect(maps.Values(m.sessions))
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return cmp.Compare(a.CameraID, b.CameraID)
	})
	return infos
}

// Start starts capture on camera id.
func (m *Manager) Start(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Device.Start()
}

// Stop stops capture on camera id.
func (m *Manager) Stop(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Device.Stop()
}

// Close closes camera id and forgets its session. The device claim is
// released even when closing the backend reports an error.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.claims, s.key)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}

	err := s.Device.Close()
	if err != nil {
		m.logger.Warn("Camera closed with errors", "camera", id, "error", err)
	} else {
		m.logger.Info("Camera closed", "camera", id, "session", s.ID)
	}
	m.publish(events.CameraClosedEvent{CameraID: id, SessionID: s.ID, Timestamp: timestamp()})
	return err
}

// CloseAll closes every session and returns the joined errors.
func (m *Manager) CloseAll() error {
	m.mu.RLock()
	ids := slices.Sorted(maps.Keys(m.sessions))
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrCameraNotFound) {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops handling hotplug events, abandons pending hotplug retries
// and closes every session.
func (m *Manager) Shutdown() error {
	m.unsubscribe()
	m.cancel()
	m.wg.Wait()
	return m.CloseAll()
}

// AllClosed reports whether no session is open.
func (m *Manager) AllClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions) == 0
}

// AnyPlaying reports whether any session is capturing.
func (m *Manager) AnyPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Device.State() == camera.StateStarted {
			return true
		}
	}
	return false
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func canonical(driver camera.Driver, id string) string {
	node, _ := resolve(driver, id)
	return node
}

// resolve is canonical that also reports whether id could be resolved. It
// falls back to id itself when it cannot.
func resolve(driver camera.Driver, id string) (string, bool) {
	c, ok := driver.(Canonicalizer)
	if !ok {
		return id, true
	}
	node, err := c.Canonical(id)
	if err != nil {
		return id, false
	}
	return node, true
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
