//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

var (
	sysfsRoot = "/sys/class/video4linux"
	byIDDir   = "/dev/v4l/by-id"
)

// FindDevices finds all V4L2 video capture devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	logger := slog.With("component", "linuxav")
	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		info, err := QueryDevice(devicePath)
		if err != nil {
			logger.Debug("failed to query video device", "path", devicePath, "error", err)
			continue
		}

		// Only include video capture devices
		if info.Caps&capVideoCapture == 0 {
			continue
		}

		index := readSysfsInt(filepath.Join(sysfsRoot, entry.Name(), "index"))
		info.DeviceID = findStableID(entry.Name(), index)
		if info.DeviceID == "" {
			if strings.HasPrefix(info.BusInfo, "usb-") {
				info.DeviceID = fmt.Sprintf("%s-video-index%d", info.BusInfo, index)
			} else {
				info.DeviceID = fmt.Sprintf("platform-%s-video-index%d", info.BusInfo, index)
			}
		}

		devices = append(devices, info)
	}

	return devices, nil
}

// QueryDevice opens devicePath and reads its capabilities. DeviceID is left
// empty; FindDevices fills it in.
func QueryDevice(devicePath string) (DeviceInfo, error) {
	fd, err := openDevice(devicePath)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("failed to open device: %w", err)
	}
	defer closeDevice(fd)

	c := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return DeviceInfo{}, fmt.Errorf("VIDIOC_QUERYCAP: %w", err)
	}

	// Effective capabilities of this node rather than the whole device
	caps := c.capabilities
	if caps&capDeviceCaps != 0 {
		caps = c.deviceCaps
	}

	return DeviceInfo{
		DevicePath: devicePath,
		DeviceName: cstr(c.card[:]),
		Driver:     cstr(c.driver[:]),
		BusInfo:    cstr(c.busInfo[:]),
		Caps:       caps,
	}, nil
}

// ResolveDevice maps an identifier to a device node. It accepts a device
// path, a node name such as "video0", or a stable ID from FindDevices.
func ResolveDevice(id string) (string, error) {
	if strings.HasPrefix(id, "/") {
		return id, nil
	}
	if strings.HasPrefix(id, "video") {
		if _, err := strconv.Atoi(strings.TrimPrefix(id, "video")); err == nil {
			return "/dev/" + id, nil
		}
	}
	return GetDevicePathByID(id)
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
