// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout when it is connected, to the systemd journal when
// journald is running, and to an in-memory history served by the API.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture": "debug",
//		},
//	})
//
// Then take a logger per module:
//
//	logger := logging.GetLogger("manager")
//	logger.Info("Camera opened", "camera", id)
//
// Loggers returned before Initialize are kept and pick up the configured
// level afterwards. SetLevel changes a module's level at runtime.
//
// When running under systemd:
//
//	journalctl -t camerad -f
//	journalctl -t camerad MODULE=capture DEVICE=front
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	capture = "debug"
//	api = "warn"
package logging
