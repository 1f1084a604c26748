package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

const terminalIDKey contextKey = "terminal_id"

// RequireTerminal parses the {tid} URL parameter and stores it in the request
// context. Requests without a valid terminal ID are rejected with 400.
func RequireTerminal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tidStr := chi.URLParam(r, "tid")
		if tidStr == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing terminal ID"})
			return
		}

		tid, err := uuid.Parse(tidStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid terminal ID"})
			return
		}

		ctx := context.WithValue(r.Context(), terminalIDKey, tid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TerminalIDFromContext returns the terminal ID set by RequireTerminal.
func TerminalIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	tid, ok := ctx.Value(terminalIDKey).(uuid.UUID)
	return tid, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
