// Package notify pushes newly detected alerts to external channels.
package notify

import (
	"context"

	"github.com/polysentry/tracker/internal/model"
)

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Send(ctx context.Context, alerts []model.Alert) error
	IsConfigured() bool
}
