// Package http exposes the download access control API under /v1/.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avastel/gatekeeper/core"
	"github.com/avastel/gatekeeper/logger"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Core   *core.Core
	Logger logger.Logger
}

// Handler creates and returns the main HTTP handler for Gatekeeper.
func Handler(props *HandlerProperties) http.Handler {
	c := props.Core
	log := props.Logger.WithSubsystem("http")

	r := chi.NewRouter()

	r.Route("/v1", func(r chi.Router) {
		// Access requests: classify + entitle + issue
		r.Post("/access/{identifier}", handleAccess(c, log))

		// Download authorization and recording by token secret
		r.Get("/download/{token}", handleDownload(c, log))
		r.Post("/download/{token}/record", handleRecord(c, log))

		// Token lifecycle by server-generated id
		r.Get("/tokens/{id}", handleGetToken(c, log))
		r.Post("/tokens/{id}/regenerate", handleRegenerate(c, log))
		r.Post("/tokens/{id}/deactivate", handleDeactivate(c, log))

		// System endpoints
		r.Get("/sys/health", handleHealth(c))
		r.Get("/sys/metrics", handleMetrics(c))
		r.Post("/sys/sweep", handleSweep(c, log))
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "path must begin with /v1/")
	})

	return r
}
