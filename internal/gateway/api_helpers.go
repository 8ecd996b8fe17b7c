package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/models"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// --- HTTP response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeAppError renders err through the apperr taxonomy. Internal causes are
// logged but never sent to the caller.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind, msg := apperr.Public(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, string(kind), msg)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid("malformed request body: %v", err)
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Invalid("%s is required", name)
	}
	return nil
}

func parseProvider(raw string) (models.ProviderType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	p, err := models.ParseProviderType(raw)
	if err != nil {
		return "", apperr.Invalid("%v", err)
	}
	return p, nil
}

func parseTypes(raw []string) ([]models.OpportunityType, error) {
	out := make([]models.OpportunityType, 0, len(raw))
	for _, s := range raw {
		t, err := models.ParseOpportunityType(s)
		if err != nil {
			return nil, apperr.Invalid("%v", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
