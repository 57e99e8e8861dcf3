// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/fablegame/fable/internal/coordinator"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler reports liveness and the running environment.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	env := os.Getenv("FABLE_ENV")
	if env == "" {
		env = "development"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": env,
	})
}

// PingHandler is a trivial reachability check.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// GameStateHandler serves the current redacted snapshot to polling clients.
// The deck and discard pile never appear in the response.
func GameStateHandler(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, coord.Snapshot())
	}
}
