package adapter

import "context"

// AlertNotifier delivers operator-visible alerts (circuit breaker
// opened, controller tick failing repeatedly). Best effort; callers
// log and continue on error.
type AlertNotifier interface {
	Notify(ctx context.Context, text string) error
}
