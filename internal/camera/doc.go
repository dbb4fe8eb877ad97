// Package camera implements a platform-independent capture core on top of a
// small Backend contract.
//
// A Device moves through opened, configured, started and stopped states and
// ends closed. While started it runs one capture goroutine that pulls frames
// from the backend and either queues them for AcquireFrame, dropping the
// oldest when the queue is full, or passes them to a FrameCallback.
//
// Basic usage:
//
//	dev, err := camera.Open(driver, "video0", camera.Spec{Width: 1280, Height: 720}, nil)
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//
//	if err := dev.Start(); err != nil {
//		return err
//	}
//	f, err := dev.AcquireFrame()
//	if err == nil && f != nil {
//		process(f.Data())
//		dev.ReleaseFrame(f)
//	}
//
// Errors carry an ErrorCode and match the package sentinels with errors.Is.
package camera
