package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

var knownStates = map[domain.PositionState]bool{
	domain.PositionPending:  true,
	domain.PositionOpen:     true,
	domain.PositionResolved: true,
	domain.PositionClosed:   true,
	domain.PositionExpired:  true,
}

// parseStates reads ?state=OPEN,RESOLVED. An unknown state is an error.
func parseStates(r *http.Request) ([]domain.PositionState, error) {
	raw := r.URL.Query().Get("state")
	if raw == "" {
		return nil, nil
	}
	var out []domain.PositionState
	for _, part := range strings.Split(raw, ",") {
		s := domain.PositionState(strings.ToUpper(strings.TrimSpace(part)))
		if s == "" {
			continue
		}
		if !knownStates[s] {
			return nil, &badParamError{name: "state", value: part}
		}
		out = append(out, s)
	}
	return out, nil
}

type badParamError struct{ name, value string }

func (e *badParamError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}
