package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/techservice/notifier/internal/application/notification"
	"github.com/techservice/notifier/internal/application/verification"
	appmiddleware "github.com/techservice/notifier/internal/transport/http/middleware"
)

// Deps holds the services and infrastructure the router exposes.
type Deps struct {
	Codes         verification.Service
	Notifications notification.Service
	// Verifier guards staff routes. Nil disables authentication, which is
	// only sensible in local development.
	Verifier appmiddleware.TokenVerifier
	Gatherer prometheus.Gatherer
}
