package camera

// State is the lifecycle position of a Device.
type State string

// Device states.
const (
	StateOpened       State = "opened"       // Backend claimed, no spec yet
	StateConfigured   State = "configured"   // Spec negotiated
	StateStarted      State = "started"      // Capture goroutine running
	StateStopped      State = "stopped"      // Capture goroutine joined, may restart
	StateDisconnected State = "disconnected" // Started, but capture gave up after repeated failures
	StateClosed       State = "closed"       // Backend released
)

// Mode is the frame delivery discipline of a Device.
type Mode string

// Delivery modes. A device starts unset and latches on first use.
const (
	ModeUnset    Mode = "unset"
	ModePoll     Mode = "poll"
	ModeCallback Mode = "callback"
)

// Stats are cumulative capture counters for one open session.
type Stats struct {
	Captured  uint64 `json:"captured"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
}

// Info is a point-in-time snapshot of a Device.
type Info struct {
	Name          string `json:"name"`
	State         State  `json:"state"`
	Spec          Spec   `json:"spec"`
	SpecSet       bool   `json:"spec_set"`
	Mode          Mode   `json:"mode"`
	QueueLength   int    `json:"queue_length"`
	QueueCapacity int    `json:"queue_capacity"`
	Outstanding   int    `json:"outstanding"`
	Stats         Stats  `json:"stats"`
	LastError     string `json:"last_error,omitempty"`
}
