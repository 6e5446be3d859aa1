package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/graphspace/pkg/schema"
)

// toJSON marshals a value to indented JSON for template rendering.
func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// timeAgo returns a human-readable relative time string.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// kindBadge returns a CSS class name for an outcome kind or event type.
func kindBadge(kind string) string {
	switch kind {
	case string(schema.OutcomeFilter), string(schema.OutcomeSearch):
		return "badge-active"
	case string(schema.OutcomeNode), schema.EventInstanceCreated:
		return "badge-success"
	case schema.EventInstanceRemoved:
		return "badge-muted"
	case schema.EventInstanceUpdated:
		return "badge-warning"
	default:
		return "badge-secondary"
	}
}

// truncate shortens a string to max length, appending "..." if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a GraphspaceError code to an HTTP status and writes
// the structured error.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if schema.CodeOf(err) == "" {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, status, map[string]any{"error": err})
}

func statusOf(err error) int {
	switch schema.CodeOf(err) {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeDisabled, schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeUnsupportedFormat:
		return http.StatusBadRequest
	case schema.ErrCodeParse:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeLayoutEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeParams reads an optional JSON object body. An empty body is nil params.
func decodeParams(r *http.Request) (map[string]any, error) {
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return params, nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
