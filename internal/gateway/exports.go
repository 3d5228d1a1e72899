package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createExportBody struct {
	Filters any      `json:"filters,omitempty"`
	Schema  []string `json:"schema,omitempty"`
}

// handleCreateExport serves POST /v1/exports. The job runs detached; the
// response carries the id to poll. schema narrows the artifact to the named
// memory fields.
func (g *Gateway) handleCreateExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createExportBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id, err := g.exports.Create(r.Context(), tenantFrom(r), body.Filters, body.Schema)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "PROCESSING"})
	}
}

// handleImportExport serves POST /v1/exports/{id}/import: the completed
// export's memories are restored under the caller's tenant.
func (g *Gateway) handleImportExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imported, err := g.exports.Import(r.Context(), tenantFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
	}
}

// handleGetExport serves GET /v1/exports and GET /v1/exports/{id}. Without
// an id the tenant's latest export is returned. A completed export's
// response embeds the artifact.
func (g *Gateway) handleGetExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, data, err := g.exports.Get(r.Context(), tenantFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		resp := map[string]any{
			"id":         rec.ID,
			"status":     rec.Status,
			"created_at": rec.CreatedAt,
			"updated_at": rec.UpdatedAt,
		}
		if rec.Error != "" {
			resp["error"] = rec.Error
		}
		if data != nil {
			resp["data"] = json.RawMessage(data)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
