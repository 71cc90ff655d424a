// Package notify shows desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"

	"flemme/internal/logging"
)

// Title prefixes every notification.
const Title = "Flemme"

// Notifier shows notifications when Enabled.
type Notifier struct {
	Enabled bool
}

// Notify shows message. Failures are logged and otherwise ignored.
func (n Notifier) Notify(message string) {
	if !n.Enabled {
		return
	}
	if err := beeep.Notify(Title, message, ""); err != nil {
		log := logging.WithComponent("notify")
		log.Debug().Err(err).Msg("notification failed")
	}
}
