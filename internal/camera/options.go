package camera

import "log/slog"

// Defaults applied by OpenDevice when Options leaves a field zero.
const (
	DefaultQueueCapacity    = 4
	DefaultFailureThreshold = 5
)

// StateChangeCallback is called after a device changes state. It runs on the
// goroutine that caused the transition and must not call back into the
// device's lifecycle methods.
type StateChangeCallback func(name string, oldState, newState State)

// DisconnectCallback is called from the capture goroutine when the device is
// marked disconnected. cause is the last backend error.
type DisconnectCallback func(name string, cause error)

// Options configures a Device.
type Options struct {
	// QueueCapacity bounds the poll queue. Oldest frames are dropped beyond it.
	QueueCapacity int

	// FailureThreshold is the number of consecutive backend acquire failures
	// after which the device is marked disconnected.
	FailureThreshold int

	// OnStateChange is notified of lifecycle transitions (optional).
	OnStateChange StateChangeCallback

	// OnDisconnect is notified when capture gives up (optional).
	OnDisconnect DisconnectCallback

	// Logger for device operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.QueueCapacity <= 0 {
		out.QueueCapacity = DefaultQueueCapacity
	}
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = DefaultFailureThreshold
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
