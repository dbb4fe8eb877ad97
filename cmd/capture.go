package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/logging"
	"github.com/spf13/cobra"
)

// pollInterval is how long the poll loop sleeps when no frame is queued.
const pollInterval = 5 * time.Millisecond

type captureOptions struct {
	driver    string
	device    string
	format    string
	width     int
	height    int
	fps       float64
	frames    int
	outDir    string
	callback  bool
	queue     int
	synthetic int
	timeout   time.Duration
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var o captureOptions

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture raw frames from one camera",
		Long: `Opens a camera, negotiates the closest supported spec, captures the requested number of frames ` +
			`and writes each one to the output directory as raw pixel data. Frames are polled by default; ` +
			`--callback delivers them on the capture goroutine instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("capture")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := runCapture(ctx, o, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d frames to %s\n", n, o.outDir)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.driver, "driver", "d", "v4l2", "Driver name (v4l2, synthetic)")
	f.StringVar(&o.device, "device", "", "Device identifier, e.g. /dev/video0, video0 or a stable ID")
	f.StringVar(&o.format, "format", "", "Pixel format FourCC, e.g. YUYV or MJPG")
	f.IntVar(&o.width, "width", 0, "Requested width")
	f.IntVar(&o.height, "height", 0, "Requested height")
	f.Float64Var(&o.fps, "fps", 0, "Requested frame rate")
	f.IntVarP(&o.frames, "frames", "n", 10, "Number of frames to capture")
	f.StringVarP(&o.outDir, "out", "o", ".", "Output directory")
	f.BoolVar(&o.callback, "callback", false, "Use callback delivery instead of polling")
	f.IntVar(&o.queue, "queue", camera.DefaultQueueCapacity, "Poll queue capacity")
	f.IntVar(&o.synthetic, "synthetic", 1, "Number of synthetic cameras to serve")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "Give up after this long")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

// runCapture returns the number of frames written.
func runCapture(ctx context.Context, o captureOptions, logger *slog.Logger) (int, error) {
	if o.frames <= 0 {
		return 0, errors.New("--frames must be positive")
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	driver, err := findDriver(Drivers(DriverOptions{SyntheticCameras: o.synthetic, Logger: logger}), o.driver)
	if err != nil {
		return 0, err
	}

	requested := camera.Spec{
		Format: camera.PixelFormat(strings.ToUpper(o.format)),
		Width:  o.width,
		Height: o.height,
		FPS:    o.fps,
	}
	dev, err := camera.Open(driver, o.device, requested, &camera.Options{
		QueueCapacity: o.queue,
		Logger:        logger,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}()

	spec, _ := dev.Spec()
	logger.Info("Capturing", "device", o.device, "requested", requested.String(), "spec", spec.String(), "frames", o.frames)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var written int
	if o.callback {
		written, err = captureCallback(ctx, dev, o)
	} else {
		written, err = capturePoll(ctx, dev, o)
	}

	if stopErr := dev.Stop(); stopErr != nil && !errors.Is(stopErr, camera.ErrInvalidState) {
		err = errors.Join(err, stopErr)
	}

	info := dev.Info()
	logger.Info("Capture finished",
		"written", written,
		"captured", info.Stats.Captured,
		"dropped", info.Stats.Dropped,
		"failures", info.Stats.Failures)
	return written, err
}

func capturePoll(ctx context.Context, dev *camera.Device, o captureOptions) (int, error) {
	if err := dev.Start(); err != nil {
		return 0, err
	}

	written := 0
	for written < o.frames {
		f, err := dev.AcquireFrame()
		if err != nil {
			return written, err
		}
		if f == nil {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		werr := writeFrame(o.outDir, f)
		if rerr := dev.ReleaseFrame(f); rerr != nil {
			return written, rerr
		}
		if werr != nil {
			return written, werr
		}
		written++
	}
	return written, nil
}

func captureCallback(ctx context.Context, dev *camera.Device, o captureOptions) (int, error) {
	type result struct{ err error }
	results := make(chan result, o.frames)

	// Writes happen on the capture goroutine; the frame is released when the
	// callback returns. Frames past the requested count are skipped.
	var claimed atomic.Int64
	if err := dev.SetFrameCallback(func(f *camera.Frame) {
		if claimed.Add(1) > int64(o.frames) {
			return
		}
		results <- result{err: writeFrame(o.outDir, f)}
	}); err != nil {
		return 0, err
	}
	if err := dev.Start(); err != nil {
		return 0, err
	}

	written := 0
	for written < o.frames {
		select {
		case r := <-results:
			if r.err != nil {
				return written, r.err
			}
			written++
		case <-dev.Done():
			if dev.Disconnected() {
				return written, camera.ErrDisconnected
			}
			return written, errors.New("capture ended")
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
	return written, nil
}

func writeFrame(dir string, f *camera.Frame) error {
	name := filepath.Join(dir, fmt.Sprintf("frame-%06d-%dx%d.%s", f.Sequence, f.Width, f.Height, strings.ToLower(string(f.Format))))
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	for _, plane := range f.Planes {
		if _, err := file.Write(plane); err != nil {
			file.Close()
			return err
		}
	}
	return file.Close()
}
