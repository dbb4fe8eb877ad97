package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/camerad/cmd"
	"github.com/smazurov/camerad/internal/api"
	"github.com/smazurov/camerad/internal/config"
	"github.com/smazurov/camerad/internal/events"
	"github.com/smazurov/camerad/internal/logging"
	"github.com/smazurov/camerad/internal/manager"
	"github.com/smazurov/camerad/internal/systemd"
	"github.com/smazurov/camerad/pkg/linuxav/hotplug"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	CamerasConfigFile string `help:"Camera definitions file" default:"cameras.toml" toml:"cameras.config_file" env:"CAMERAS_CONFIG_FILE"`
	CamerasWatch      bool   `help:"Reload camera definitions when the file changes" default:"true" toml:"cameras.watch" env:"CAMERAS_WATCH"`

	// Driver settings
	SyntheticCameras   int    `help:"Number of synthetic cameras to serve (0 disables the driver)" default:"0" toml:"drivers.synthetic_cameras" env:"DRIVERS_SYNTHETIC_CAMERAS"`
	V4L2Buffers        int    `help:"V4L2 mmap buffer count" default:"4" toml:"drivers.v4l2_buffers" env:"DRIVERS_V4L2_BUFFERS"`
	V4L2AcquireTimeout string `help:"V4L2 frame wait timeout" default:"1s" toml:"drivers.v4l2_acquire_timeout" env:"DRIVERS_V4L2_ACQUIRE_TIMEOUT"`

	// Features settings
	FeaturesHotplug bool `help:"React to device add/remove events" default:"true" toml:"features.hotplug" env:"FEATURES_HOTPLUG"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingManager string `help:"Manager logging level" default:"info" toml:"logging.manager" env:"LOGGING_MANAGER"`
	LoggingCamera  string `help:"Device logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingBackend string `help:"Backend logging level" default:"info" toml:"logging.backend" env:"LOGGING_BACKEND"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingHotplug string `help:"Hotplug logging level" default:"info" toml:"logging.hotplug" env:"LOGGING_HOTPLUG"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

const shutdownTimeout = 10 * time.Second

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.LoadConfig(opts, cli.Root())

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"manager": opts.LoggingManager,
				"camera":  opts.LoggingCamera,
				"backend": opts.LoggingBackend,
				"config":  opts.LoggingConfig,
				"hotplug": opts.LoggingHotplug,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		}
		// Extra modules from [logging.modules] in the config file
		for module, level := range config.LoadLoggingConfig(opts.Config).Modules {
			if _, ok := loggingConfig.Modules[module]; !ok {
				loggingConfig.Modules[module] = level
			}
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}

		acquireTimeout, err := time.ParseDuration(opts.V4L2AcquireTimeout)
		if err != nil {
			logger.Warn("Invalid V4L2 acquire timeout, using default", "value", opts.V4L2AcquireTimeout, "error", err)
			acquireTimeout = 0
		}

		eventBus := events.New()

		mgr := manager.New(eventBus, &manager.Options{
			Logger:       logging.GetLogger("manager"),
			DeviceLogger: logging.GetLogger("camera"),
		})
		for _, driver := range cmd.Drivers(cmd.DriverOptions{
			SyntheticCameras:   opts.SyntheticCameras,
			V4L2Buffers:        opts.V4L2Buffers,
			V4L2AcquireTimeout: acquireTimeout,
			Logger:             logging.GetLogger("backend"),
		}) {
			mgr.RegisterDriver(driver)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Manager:           mgr,
			EventBus:          eventBus,
			PrometheusHandler: promhttp.Handler(),
		})

		notifier := systemd.NewNotifier(logger)

		ctx, cancel := context.WithCancel(context.Background())
		var watcher *config.Watcher[config.Cameras]

		hooks.OnStart(func() {
			cameras, loadErr := config.LoadCameras(opts.CamerasConfigFile)
			if loadErr != nil {
				logger.Error("Failed to load cameras", "path", opts.CamerasConfigFile, "error", loadErr)
			}
			// Cameras that fail to open stay desired and are retried on hotplug
			if applyErr := mgr.Apply(ctx, cameras); applyErr != nil {
				logger.Warn("Some cameras failed to open", "error", applyErr)
			}
			logger.Info("Cameras loaded", "configured", len(cameras), "open", len(mgr.List()))

			if opts.CamerasWatch {
				watcher = startCameraWatcher(ctx, opts.CamerasConfigFile, mgr, eventBus)
			}
			if opts.FeaturesHotplug {
				go watchHotplug(ctx, eventBus, logging.GetLogger("hotplug"))
			}

			notifier.Status("%d of %d cameras open", len(mgr.List()), len(cameras))
			notifier.Ready()
			// List blocks if the manager is wedged, which starves the watchdog
			go notifier.RunWatchdog(ctx, func() bool {
				mgr.List()
				return true
			})

			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()

			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			cancel()

			logger.Info("Closing all cameras")
			if stopErr := mgr.Shutdown(); stopErr != nil {
				logger.Error("Error closing cameras", "error", stopErr)
			}
		})
	})

	cli.Root().Use = "camerad"
	cli.Root().Short = "Camera capture daemon"
	cli.Root().AddCommand(cmd.CreateListDevicesCmd())
	cli.Root().AddCommand(cmd.CreateCaptureCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}

func startCameraWatcher(ctx context.Context, path string, mgr *manager.Manager, bus *events.Bus) *config.Watcher[config.Cameras] {
	logger := logging.GetLogger("config")

	watcher := config.NewConfigWatcher(path, config.LoadCameras, logger,
		config.WithErrorHandler[config.Cameras](func(err error) {
			logger.Error("Camera config rejected, keeping current cameras", "path", path, "error", err)
		}),
	)
	watcher.OnReload(func(cameras config.Cameras) {
		if err := mgr.Apply(ctx, cameras); err != nil {
			logger.Warn("Camera reload applied with errors", "error", err)
		}
		bus.Publish(events.ConfigReloadedEvent{
			Path:      path,
			Cameras:   len(cameras),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Camera config watch disabled", "path", path, "error", err)
		return nil
	}
	return watcher
}

// watchHotplug forwards video4linux uevents to the bus until ctx ends.
func watchHotplug(ctx context.Context, bus *events.Bus, logger *slog.Logger) {
	monitor, err := hotplug.NewMonitor()
	if err != nil {
		if errors.Is(err, hotplug.ErrUnsupported) {
			logger.Info("Hotplug monitoring not available on this platform")
		} else {
			logger.Warn("Failed to start hotplug monitor", "error", err)
		}
		return
	}
	defer monitor.Close()
	monitor.AddSubsystemFilter(hotplug.SubsystemVideo4Linux)

	ch := make(chan hotplug.Event, 16)
	go func() {
		if runErr := monitor.Run(ctx, ch); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("Hotplug monitor stopped", "error", runErr)
		}
	}()

	logger.Info("Watching for camera hotplug events")
	for ev := range ch {
		if !ev.IsVideoNode() {
			continue
		}
		switch ev.Action {
		case hotplug.ActionAdd, hotplug.ActionRemove:
		default:
			continue
		}
		logger.Debug("Device event", "action", ev.Action, "node", ev.Node())
		bus.Publish(events.DeviceHotplugEvent{
			Action:    ev.Action,
			Node:      ev.Node(),
			Subsystem: ev.Subsystem,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
