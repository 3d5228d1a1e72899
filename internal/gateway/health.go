package gateway

import (
	"net/http"
	"time"
)

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// handleHealth reports liveness. Readiness of collaborators is not probed:
// the service degrades per request, it does not flap health.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Round(time.Second).String(),
		})
	}
}
