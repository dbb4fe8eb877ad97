package manager

import (
	"time"

	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/config"
)

// Session is one open camera.
type Session struct {
	// ID is unique per open; reopening a camera yields a new ID.
	ID       string
	CameraID string
	Config   config.CameraConfig
	// Node is the canonical device identifier, e.g. /dev/video0.
	Node     string
	OpenedAt time.Time
	Device   *camera.Device

	key string
}

// SessionInfo is a serializable snapshot of a Session.
type SessionInfo struct {
	CameraID  string      `json:"camera_id" example:"front" doc:"Configured camera identifier"`
	SessionID string      `json:"session_id" doc:"Identifier of the current open session"`
	Driver    string      `json:"driver" example:"v4l2" doc:"Driver name"`
	Device    string      `json:"device" example:"/dev/video0" doc:"Configured device identifier"`
	Node      string      `json:"node" example:"/dev/video0" doc:"Resolved device node"`
	Autostart bool        `json:"autostart" doc:"Whether capture starts when the camera is opened"`
	OpenedAt  time.Time   `json:"opened_at" doc:"When the session was opened"`
	Status    camera.Info `json:"status" doc:"Device state, spec and counters"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		CameraID:  s.CameraID,
		SessionID: s.ID,
		Driver:    s.Config.Driver,
		Device:    s.Config.Device,
		Node:      s.Node,
		Autostart: s.Config.Autostart,
		OpenedAt:  s.OpenedAt,
		Status:    s.Device.Info(),
	}
}
