package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"poller/pkg/logging"
)

// notifyReady tells systemd the controllers are started. Outside systemd it
// does nothing.
func notifyReady() {
	sdNotify(daemon.SdNotifyReady)
}

func notifyStopping() {
	sdNotify(daemon.SdNotifyStopping)
}

func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Bootstrap", "Failed to notify systemd (%s): %v", state, err)
		return
	}
	if sent {
		logging.Debug("Bootstrap", "Notified systemd: %s", state)
	}
}
