// Package respond renders JSON bodies and provider errors for the HTTP layer.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"paygate/internal/provider"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

type errorBody struct {
	Kind       provider.Kind `json:"kind"`
	Message    string        `json:"message"`
	Provider   string        `json:"provider,omitempty"`
	Operation  string        `json:"operation,omitempty"`
	RetryAfter int           `json:"retry_after,omitempty"`
}

// Error renders err as {"error": {...}} with the kind's status code.
// Errors that are not *provider.Error are reported as internal.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	pe, ok := provider.AsError(err)
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		JSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorBody{Kind: provider.KindUnknown, Message: "internal error"},
		})
		return
	}

	status := pe.Kind.HTTPStatus()
	body := errorBody{
		Kind:      pe.Kind,
		Message:   pe.Message,
		Provider:  pe.Provider,
		Operation: pe.Operation,
	}
	if pe.Kind == provider.KindRateLimitExceeded {
		body.RetryAfter = pe.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("path", r.URL.Path).
		Str("kind", string(pe.Kind)).
		Int("status", status).
		Msg("request failed")

	JSON(w, status, map[string]any{"error": body})
}
