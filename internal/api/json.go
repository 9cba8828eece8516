package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Spiffical/hydrolabel/internal/schema"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error      string      `json:"error"`
	Violations []Violation `json:"violations,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// violationBody builds an error response carrying every schema violation,
// so clients can surface per-field failures.
func violationBody(err error) errResponse {
	errs := schema.AsErrors(err)
	out := errResponse{Error: "document rejected", Violations: make([]Violation, len(errs))}
	for i, e := range errs {
		out.Violations[i] = Violation{
			Class:  string(e.Class),
			Kind:   string(e.Kind),
			Field:  e.Field,
			Detail: e.Detail,
		}
	}
	return out
}
