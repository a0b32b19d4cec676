package app

import "github.com/amirasaad/microgive/pkg/handler/notification"

// setupEventBus registers the post-settlement handlers.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	if bus == nil {
		return
	}
	n := a.Deps.Notifier
	if n == nil {
		n = notification.LogNotifier{Logger: a.Deps.Logger}
	}
	notification.Register(bus, n, a.Deps.Logger)
}
