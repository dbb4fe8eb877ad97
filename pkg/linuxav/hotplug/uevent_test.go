package hotplug

import (
	"testing"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected *Event
	}{
		{name: "empty input", input: []byte{}},
		{name: "nil input", input: nil},
		{name: "no @ separator", input: []byte("invalid")},
		{name: "missing action", input: []byte("@/devices/foo")},
		{
			name:  "camera add",
			input: []byte("add@/devices/pci0000:00/usb1/1-1/video4linux/video0\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			expected: &Event{
				Action:    ActionAdd,
				KObj:      "/devices/pci0000:00/usb1/1-1/video4linux/video0",
				Subsystem: SubsystemVideo4Linux,
				DevName:   "video0",
				Env: map[string]string{
					"SUBSYSTEM": "video4linux",
					"DEVNAME":   "video0",
				},
			},
		},
		{
			name:  "usb remove with properties",
			input: []byte("remove@/devices/usb/1-1\x00SUBSYSTEM=usb\x00DEVTYPE=usb_device\x00DEVPATH=/devices/usb/1-1\x00PRODUCT=46d/825/12\x00"),
			expected: &Event{
				Action:    ActionRemove,
				KObj:      "/devices/usb/1-1",
				Subsystem: SubsystemUSB,
				DevType:   "usb_device",
				DevPath:   "/devices/usb/1-1",
				Env: map[string]string{
					"SUBSYSTEM": "usb",
					"DEVTYPE":   "usb_device",
					"DEVPATH":   "/devices/usb/1-1",
					"PRODUCT":   "46d/825/12",
				},
			},
		},
		{
			name:  "value containing equals",
			input: []byte("change@/devices/x\x00ID_PATH=pci-0000:00:14.0-usb-0:1=1\x00"),
			expected: &Event{
				Action: ActionChange,
				KObj:   "/devices/x",
				Env:    map[string]string{"ID_PATH": "pci-0000:00:14.0-usb-0:1=1"},
			},
		},
		{
			name:  "libudev header skipped",
			input: append([]byte("libudev\x00\xfe\xed\x00"), []byte("remove@/devices/v/video2\x00SUBSYSTEM=video4linux\x00DEVNAME=video2\x00")...),
			expected: &Event{
				Action:    ActionRemove,
				KObj:      "/devices/v/video2",
				Subsystem: SubsystemVideo4Linux,
				DevName:   "video2",
				Env: map[string]string{
					"SUBSYSTEM": "video4linux",
					"DEVNAME":   "video2",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUEvent(tt.input)
			if tt.expected == nil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected event, got nil")
			}
			if got.Action != tt.expected.Action || got.KObj != tt.expected.KObj ||
				got.Subsystem != tt.expected.Subsystem || got.DevType != tt.expected.DevType ||
				got.DevName != tt.expected.DevName || got.DevPath != tt.expected.DevPath {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
			if len(got.Env) != len(tt.expected.Env) {
				t.Fatalf("env = %v, want %v", got.Env, tt.expected.Env)
			}
			for k, v := range tt.expected.Env {
				if got.Env[k] != v {
					t.Errorf("env[%s] = %q, want %q", k, got.Env[k], v)
				}
			}
		})
	}
}

func TestEventNode(t *testing.T) {
	tests := []struct {
		event Event
		node  string
		video bool
	}{
		{event: Event{Subsystem: SubsystemVideo4Linux, DevName: "video0"}, node: "/dev/video0", video: true},
		{event: Event{Subsystem: SubsystemUSB, DevName: "bus/usb/001/004"}, node: "/dev/bus/usb/001/004"},
		{event: Event{Subsystem: SubsystemVideo4Linux}, node: ""},
		{event: Event{DevName: "/dev/video1"}, node: "/dev/video1"},
	}
	for _, tt := range tests {
		if got := tt.event.Node(); got != tt.node {
			t.Errorf("Node() = %q, want %q", got, tt.node)
		}
		if got := tt.event.IsVideoNode(); got != tt.video {
			t.Errorf("IsVideoNode() = %v, want %v for %+v", got, tt.video, tt.event)
		}
	}
}

func TestFilterAllows(t *testing.T) {
	var empty filter
	if !empty.allows("anything") {
		t.Error("empty filter must pass everything")
	}
	f := filter{SubsystemVideo4Linux: {}}
	if !f.allows(SubsystemVideo4Linux) || f.allows(SubsystemUSB) {
		t.Error("filter did not restrict to video4linux")
	}
}
