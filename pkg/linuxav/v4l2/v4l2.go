// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration and capture mode queries.
//
// This package does not use cgo. On platforms other than Linux every query
// returns ErrUnsupported.
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Capture Modes
//
// EnumerateModes walks formats, frame sizes and frame intervals in driver
// order and flattens them:
//
//	modes, _ := v4l2.EnumerateModes("/dev/video0")
//	for _, m := range modes {
//	    fmt.Printf("%s %dx%d @ %.2f fps\n", m.FourCC(), m.Width, m.Height, m.Rate.FPS())
//	}
package v4l2

import "errors"

// ErrUnsupported is returned on platforms without V4L2.
var ErrUnsupported = errors.New("v4l2: not supported on this platform")
