// Package api is the inbound webhook surface: one POST route per
// broker backend plus health. Alert bodies and the out-of-band admin
// commands share the same routes, the way the upstream alert source
// delivers them.
package api

import (
	"net/http"
)

// NewRouter wires the webhook handlers. handlers maps a route (for
// example "/fyers") to the signal handler that serves it.
func NewRouter(handlers map[string]SignalHandler, health http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	for route, h := range handlers {
		mux.Handle(route, &webhook{handler: h})
	}
	if health != nil {
		mux.Handle("/healthz", health)
	}

	return mux
}
