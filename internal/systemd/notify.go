// Package systemd reports daemon readiness and liveness to the service
// manager through sd_notify. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// HealthFunc reports whether the daemon should keep petting the watchdog.
type HealthFunc func() bool

// Notifier sends state updates to systemd.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a notifier using NOTIFY_SOCKET from the environment.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

// Ready tells systemd startup finished.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

func (n *Notifier) send(state string) bool {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return false
	}
	if sent {
		n.logger.Debug("sd_notify", "state", state)
	}
	return sent
}

// RunWatchdog pets the watchdog at half the configured interval until ctx
// ends. Pings are skipped while healthy returns false so systemd can restart
// a wedged daemon. It returns immediately when WatchdogSec is not set.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy HealthFunc) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.watchdog(ctx, interval/2, healthy)
}

func (n *Notifier) watchdog(ctx context.Context, every time.Duration, healthy HealthFunc) {
	n.logger.Info("Watchdog enabled", "interval", every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy != nil && !healthy() {
				n.logger.Warn("Skipping watchdog ping, daemon unhealthy")
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
