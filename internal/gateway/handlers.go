package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/recallstack/recall/internal/memory"
)

// scopeBody carries the scope fields clients send alongside each request.
// The tenant id always comes from the request header, never the body.
type scopeBody struct {
	UserID    string `json:"user_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

func (b scopeBody) scope(r *http.Request) memory.Scope {
	return memory.Scope{
		TenantID:  tenantFrom(r),
		UserID:    b.UserID,
		AgentID:   b.AgentID,
		AppID:     b.AppID,
		RunID:     b.RunID,
		OrgID:     b.OrgID,
		ProjectID: b.ProjectID,
	}
}

// outputFormat selects the response envelope: "v1.0" returns a bare array,
// "v1.1" (the default) wraps it in {"results": ...}.
func envelope(format string, results any) any {
	if format == "v1.0" {
		return results
	}
	return map[string]any{"results": results}
}

type createBody struct {
	scopeBody
	memory.CreateRequest
	OutputFormat string `json:"output_format,omitempty"`
}

// handleCreate serves POST /v1/memories.
func (g *Gateway) handleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		results, err := g.memories.Create(r.Context(), body.scope(r), body.CreateRequest)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope(body.OutputFormat, results))
	}
}

type searchBody struct {
	scopeBody
	memory.SearchRequest
	OutputFormat string `json:"output_format,omitempty"`
}

// handleSearch serves POST /v1/memories/search.
func (g *Gateway) handleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body searchBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		ranked, err := g.memories.Search(r.Context(), body.scope(r), body.SearchRequest)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		results := make([]map[string]any, 0, len(ranked))
		for _, m := range ranked {
			results = append(results, memory.ProjectRanked(m, body.Fields))
		}
		writeJSON(w, http.StatusOK, envelope(body.OutputFormat, results))
	}
}

// handleList serves GET /v1/memories. The filter document, when present,
// rides in the "filters" query parameter as JSON.
func (g *Gateway) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := memory.Scope{
			TenantID:  tenantFrom(r),
			UserID:    r.URL.Query().Get("user_id"),
			AgentID:   r.URL.Query().Get("agent_id"),
			AppID:     r.URL.Query().Get("app_id"),
			RunID:     r.URL.Query().Get("run_id"),
			OrgID:     r.URL.Query().Get("org_id"),
			ProjectID: r.URL.Query().Get("project_id"),
		}

		var rawFilter any
		if f := r.URL.Query().Get("filters"); f != "" {
			rawFilter = f
		}
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		rows, err := g.memories.List(r.Context(), scope, rawFilter, limit)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope(r.URL.Query().Get("output_format"), rows))
	}
}

// handleGet serves GET /v1/memories/{id}.
func (g *Gateway) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := g.memories.Get(r.Context(), memory.Scope{TenantID: tenantFrom(r)}, chi.URLParam(r, "id"))
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

type updateBody struct {
	scopeBody
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	ActorID  string          `json:"actor_id,omitempty"`
}

// handleUpdate serves PUT /v1/memories/{id}.
func (g *Gateway) handleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		m, err := g.memories.Update(r.Context(), body.scope(r), chi.URLParam(r, "id"), body.Text, body.Metadata, body.ActorID)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// handleDelete serves DELETE /v1/memories/{id}.
func (g *Gateway) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := memory.Scope{TenantID: tenantFrom(r)}
		if err := g.memories.Delete(r.Context(), scope, chi.URLParam(r, "id"), r.URL.Query().Get("actor_id")); err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "memory deleted"})
	}
}

type batchUpdateBody struct {
	scopeBody
	Memories []memory.BatchUpdateItem `json:"memories"`
	ActorID  string                   `json:"actor_id,omitempty"`
}

// handleBatchUpdate serves PUT /v1/memories/batch. Validation is
// all-or-nothing: one bad id rejects the whole batch before any mutation.
func (g *Gateway) handleBatchUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body batchUpdateBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rows, err := g.memories.BatchUpdate(r.Context(), body.scope(r), body.Memories, body.ActorID)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": rows})
	}
}

type batchDeleteBody struct {
	scopeBody
	IDs     []string `json:"memory_ids"`
	ActorID string   `json:"actor_id,omitempty"`
}

// handleBatchDelete serves DELETE /v1/memories/batch.
func (g *Gateway) handleBatchDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body batchDeleteBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := g.memories.BatchDelete(r.Context(), body.scope(r), body.IDs, body.ActorID); err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "memories deleted"})
	}
}

// handleHistory serves GET /v1/memories/{id}/history, newest first.
func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := g.memories.History(r.Context(), memory.Scope{TenantID: tenantFrom(r)}, chi.URLParam(r, "id"))
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": entries})
	}
}

type feedbackBody struct {
	Sentiment string `json:"feedback"`
	Reason    string `json:"reason,omitempty"`
}

// handleFeedback serves POST /v1/memories/{id}/feedback.
func (g *Gateway) handleFeedback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body feedbackBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		scope := memory.Scope{TenantID: tenantFrom(r)}
		if err := g.memories.AddFeedback(r.Context(), scope, chi.URLParam(r, "id"), body.Sentiment, body.Reason); err != nil {
			g.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "feedback recorded"})
	}
}
