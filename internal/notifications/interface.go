package notifications

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error

	// SendCriticalAlert sends a titled alert for failures that need a
	// human, such as a filled entry left without a stop-loss.
	SendCriticalAlert(title, message string) error
}
