package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/recallstack/recall/internal/billing"
	"github.com/recallstack/recall/internal/export"
	"github.com/recallstack/recall/internal/filter"
	"github.com/recallstack/recall/internal/memory"
)

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// respondError maps the domain error taxonomy to a status code. Unknown
// errors become a 500 with a generic message so internals never leak.
func (g *Gateway) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func statusFor(err error) (int, string) {
	var external *memory.ExternalError

	switch {
	case errors.Is(err, filter.ErrInvalidSyntax),
		errors.Is(err, filter.ErrInvalidField),
		errors.Is(err, filter.ErrUnsupportedOperator):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, export.ErrExportNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, memory.ErrImmutable),
		errors.Is(err, export.ErrExportIncomplete):
		return http.StatusConflict, err.Error()
	case errors.Is(err, memory.ErrEmptyContent),
		errors.Is(err, memory.ErrUnsupportedSchema),
		errors.Is(err, memory.ErrInvalidSentiment):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, billing.ErrDeclined):
		return http.StatusPaymentRequired, err.Error()
	case errors.As(err, &external):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, ""
	}
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
