// Package notify surfaces playback faults to whoever is watching the screen.
package notify

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier provides a generic interface for sending notifications.
type Notifier interface {
	Notify(title string, message string)
}

// SendFunc delivers one desktop notification.
type SendFunc func(title, message, icon string) error

// Desktop sends notifications through the desktop notification daemon.
type Desktop struct {
	logger *zap.SugaredLogger
	send   SendFunc
	icon   string
}

// NewDesktop creates a Desktop notifier. icon may be empty.
func NewDesktop(logger *zap.SugaredLogger, icon string) *Desktop {
	logger = logger.Named("notifier")
	logger.Debug("Created desktop notifier instance")
	return &Desktop{logger: logger, send: beeep.Notify, icon: icon}
}

// Notify sends a notification. Failures are logged, never returned.
func (d *Desktop) Notify(title, message string) {
	d.logger.Infow("Sending desktop notification", "title", title, "message", message)
	if err := d.send(title, message, d.icon); err != nil {
		d.logger.Warnw("Failed to send desktop notification", "error", err)
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) {}
