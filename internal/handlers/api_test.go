// internal/handlers/api_test.go
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablegame/fable/internal/coordinator"
	"github.com/fablegame/fable/internal/session"
)

func newRunningCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coord := coordinator.New(logger, session.New(logger, session.Config{}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)
	return coord
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["environment"])
}

func TestPingHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()

	PingHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

func TestGameStateHandlerServesSnapshot(t *testing.T) {
	coord := newRunningCoordinator(t)
	require.True(t, coord.Dispatch(coordinator.Event{
		Type:     coordinator.EventRegisterTeam,
		TeamName: "alpha",
		Conn:     uuid.New(),
	}).Applied)

	req := httptest.NewRequest(http.MethodGet, "/api/gamestate", nil)
	rec := httptest.NewRecorder()
	GameStateHandler(coord)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "lobby", state["currentPhase"])
	teams, ok := state["teams"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, teams, "alpha")

	// The deck and discard pile are server secrets.
	assert.NotContains(t, state, "deck")
	assert.NotContains(t, state, "discard")
}

func TestGameStateHandlerRejectsNonGET(t *testing.T) {
	coord := newRunningCoordinator(t)
	req := httptest.NewRequest(http.MethodPost, "/api/gamestate", nil)
	rec := httptest.NewRecorder()

	GameStateHandler(coord)(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
