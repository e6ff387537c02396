package http

import (
	"net/http"

	"github.com/avastel/gatekeeper/core"
	"github.com/avastel/gatekeeper/logger"
)

func handleHealth(c *core.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOk(w, c.Health())
	}
}

func handleMetrics(c *core.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOk(w, c.MetricsSnapshot())
	}
}

func handleSweep(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deactivated, err := c.SweepExpiredNow(r.Context())
		if err != nil {
			log.Error("manual sweep failed", logger.Err(err))
			respondError(w, http.StatusBadGateway, "sweep could not be completed")
			return
		}

		respondOk(w, map[string]interface{}{
			"deactivated": deactivated,
		})
	}
}
