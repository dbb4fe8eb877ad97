//go:build !linux

package v4l2

// FindDevices returns ErrUnsupported.
func FindDevices() ([]DeviceInfo, error) { return nil, ErrUnsupported }

// QueryDevice returns ErrUnsupported.
func QueryDevice(string) (DeviceInfo, error) { return DeviceInfo{}, ErrUnsupported }

// ResolveDevice returns ErrUnsupported.
func ResolveDevice(string) (string, error) { return "", ErrUnsupported }

// GetDevicePathByID returns ErrUnsupported.
func GetDevicePathByID(string) (string, error) { return "", ErrUnsupported }

// GetFormats returns ErrUnsupported.
func GetFormats(string) ([]FormatInfo, error) { return nil, ErrUnsupported }

// GetResolutions returns ErrUnsupported.
func GetResolutions(string, uint32) ([]Resolution, error) { return nil, ErrUnsupported }

// GetFramerates returns ErrUnsupported.
func GetFramerates(string, uint32, uint32, uint32) ([]Framerate, error) {
	return nil, ErrUnsupported
}

// EnumerateModes returns ErrUnsupported.
func EnumerateModes(string) ([]Mode, error) { return nil, ErrUnsupported }
