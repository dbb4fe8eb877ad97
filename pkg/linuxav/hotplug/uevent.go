package hotplug

import (
	"bytes"
	"errors"
	"strings"
)

// ErrUnsupported is returned by NewMonitor on platforms without netlink.
var ErrUnsupported = errors.New("hotplug: not supported on this platform")

// Action constants for device events.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems a camera daemon cares about.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemUSB         = "usb"
)

// Event represents a kernel device event.
type Event struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/pci0000:00/...
	Subsystem string            // "video4linux", "usb", ...
	DevType   string            // Device type if available
	DevName   string            // Device name relative to /dev, e.g. "video0"
	DevPath   string            // Sysfs path without the /sys prefix
	Env       map[string]string // All environment variables from the event
}

// Node returns the device node of the event, e.g. "/dev/video0", or "" when
// the event carries no DEVNAME.
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

// IsVideoNode reports whether the event concerns a video4linux device node.
func (e Event) IsVideoNode() bool {
	return e.Subsystem == SubsystemVideo4Linux && e.DevName != ""
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...". It returns nil for anything that
// does not look like a uevent.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	// libudev re-broadcasts carry a binary header; skip to the action@path part
	if bytes.HasPrefix(data, []byte("libudev")) {
		for i := 0; i < len(data)-1; i++ {
			if data[i] == 0 {
				rest := data[i+1:]
				idx := bytes.IndexByte(rest, '@')
				if idx > 0 && idx < 20 && bytes.IndexByte(rest[:idx], 0) < 0 {
					data = rest
					break
				}
			}
		}
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts[0]) == 0 {
		return nil
	}

	header := string(parts[0])
	atIdx := strings.Index(header, "@")
	if atIdx < 1 {
		return nil
	}

	event := &Event{
		Action: header[:atIdx],
		KObj:   header[atIdx+1:],
		Env:    make(map[string]string),
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}

	return event
}

// filter is a set of subsystems; an empty filter passes everything.
type filter map[string]struct{}

func (f filter) allows(subsystem string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[subsystem]
	return ok
}
