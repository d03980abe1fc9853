// Package notify sends desktop notifications when an upload batch finishes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/rescale/photoup/internal/logging"
)

const appTitle = "photoup"

// Notifier handles desktop notifications.
type Notifier struct {
	logger       *logging.Logger
	enabled      bool
	showComplete bool
	showFailed   bool
	mu           sync.RWMutex

	// send and alert are swapped out in tests.
	send  func(title, message string) error
	alert func(title, message string) error
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowBatchComplete shows a notification when every item succeeded.
	ShowBatchComplete bool

	// ShowBatchFailed shows the advisory when any item failed.
	ShowBatchFailed bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		ShowBatchComplete: true,
		ShowBatchFailed:   true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Notifier{
		logger:       logger,
		enabled:      cfg.Enabled,
		showComplete: cfg.ShowBatchComplete,
		showFailed:   cfg.ShowBatchFailed,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// BatchComplete reports a batch in which every item was stored.
func (n *Notifier) BatchComplete(count int, retry bool) {
	if !n.IsEnabled() || !n.showComplete {
		return
	}

	title := "Upload Complete"
	noun := "images"
	if count == 1 {
		noun = "image"
	}
	message := fmt.Sprintf("%d %s uploaded.", count, noun)
	if retry {
		message = fmt.Sprintf("Retry finished; %d %s uploaded.", count, noun)
	}

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send batch complete notification")
	}
}

// BatchFailed shows the batch advisory as an alert.
func (n *Notifier) BatchFailed(advisory string) {
	if !n.IsEnabled() || !n.showFailed || advisory == "" {
		return
	}

	title := appTitle + ": Upload Failed"
	message := truncate(advisory, 200)

	if err := n.alert(title, message); err != nil {
		// Fall back to regular notify
		if err := n.send(title, message); err != nil {
			n.logger.Error().Err(err).Str("message", message).Msg("Failed to send batch failed notification")
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
