package events

// Event type constants for kelindar/event.
const (
	TypeCameraOpened uint32 = iota + 1
	TypeCameraStateChanged
	TypeCameraDisconnected
	TypeCameraClosed
	TypeDeviceHotplug
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraOpenedEvent is published when a camera session opens and its spec
// has been negotiated.
type CameraOpenedEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	SessionID string `json:"session_id" doc:"Identifier of this open session"`
	Driver    string `json:"driver" example:"v4l2" doc:"Driver name"`
	Device    string `json:"device" example:"/dev/video0" doc:"Driver device identifier"`
	Spec      string `json:"spec" example:"YUYV 640x480@30" doc:"Negotiated spec"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraOpenedEvent.
func (e CameraOpenedEvent) Type() uint32 { return TypeCameraOpened }

// CameraStateChangedEvent reports a device lifecycle transition.
type CameraStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	SessionID string `json:"session_id" doc:"Identifier of this open session"`
	OldState  string `json:"old_state" example:"configured" doc:"Previous state"`
	NewState  string `json:"new_state" example:"started" doc:"Current state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// CameraDisconnectedEvent is published when capture gives up on a device.
type CameraDisconnectedEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	SessionID string `json:"session_id" doc:"Identifier of this open session"`
	Reason    string `json:"reason" example:"device removed" doc:"Last backend error or hotplug action"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraDisconnectedEvent.
func (e CameraDisconnectedEvent) Type() uint32 { return TypeCameraDisconnected }

// CameraClosedEvent is published once a session is closed.
type CameraClosedEvent struct {
	CameraID  string `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	SessionID string `json:"session_id" doc:"Identifier of the closed session"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraClosedEvent.
func (e CameraClosedEvent) Type() uint32 { return TypeCameraClosed }

// DeviceHotplugEvent mirrors a kernel uevent for a video node.
type DeviceHotplugEvent struct {
	Action    string `json:"action" example:"remove" doc:"Kernel action: add, remove, change"`
	Node      string `json:"node" example:"/dev/video0" doc:"Device node"`
	Subsystem string `json:"subsystem" example:"video4linux" doc:"Kernel subsystem"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

// ConfigReloadedEvent is published after the camera file was re-applied.
type ConfigReloadedEvent struct {
	Path      string `json:"path" example:"cameras.toml" doc:"Reloaded file"`
	Cameras   int    `json:"cameras" doc:"Number of configured cameras"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
