// Package notifier delivers human-readable event notifications.
package notifier

// Notifier enqueues outbound messages. Enqueue is asynchronous and ordering
// preserving; callers must never assume delivery succeeded or completed.
// Messages flagged verbose are delivered only when verbose mode is enabled.
type Notifier interface {
	Enqueue(message string, verbose bool)
}
