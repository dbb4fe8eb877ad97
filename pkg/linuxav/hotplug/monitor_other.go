//go:build !linux

package hotplug

import "context"

// Monitor is unavailable on this platform.
type Monitor struct{}

// NewMonitor returns ErrUnsupported.
func NewMonitor() (*Monitor, error) { return nil, ErrUnsupported }

// AddSubsystemFilter does nothing.
func (m *Monitor) AddSubsystemFilter(string) {}

// Close does nothing.
func (m *Monitor) Close() error { return nil }

// Run closes events and returns ErrUnsupported.
func (m *Monitor) Run(_ context.Context, events chan<- Event) error {
	close(events)
	return ErrUnsupported
}
