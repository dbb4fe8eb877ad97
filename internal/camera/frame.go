package camera

import "time"

// Frame is one captured image. It is owned by the backend until released.
type Frame struct {
	// Planes holds the pixel data, one slice per plane. Packed formats use a
	// single plane.
	Planes [][]byte
	Format PixelFormat
	Width  int
	Height int

	// Timestamp is when the backend captured the frame.
	Timestamp time.Time

	// Sequence is assigned by the device in capture order, starting at 1.
	Sequence uint64

	// Index identifies the backend buffer holding the frame.
	Index int
}

// Data returns the first plane, or nil for an empty frame.
func (f *Frame) Data() []byte {
	if f == nil || len(f.Planes) == 0 {
		return nil
	}
	return f.Planes[0]
}

// Size returns the total number of bytes across all planes.
func (f *Frame) Size() int {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	return n
}
