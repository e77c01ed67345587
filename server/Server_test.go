package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/btcrl/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	store, err := telemetry.Open(telemetry.Config{Path: filepath.Join(t.TempDir(), "btc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	for i := 1; i <= 3; i++ {
		e := telemetry.Episode{Episode: i, Reward: float64(i) / 10,
			AgentName: "DQNAgent;priority;150-150", Steps: 20}
		if i == 2 {
			e.Y = []float64{100, 101}
			e.Signals = []float64{1, 0}
		}
		_, err := store.InsertEpisode(ctx, e)
		require.NoError(t, err)
	}

	srv := httptest.NewServer(New(Config{Log: zerolog.Nop(), Store: store}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestAgents(t *testing.T) {
	srv := newServer(t)

	var agents []telemetry.AgentSummary
	assert.Equal(t, http.StatusOK, get(t, srv, "/agents/", &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "DQNAgent;priority;150-150", agents[0].Name)
	assert.Equal(t, 3, agents[0].Episodes)
}

func TestEpisodes(t *testing.T) {
	srv := newServer(t)
	path := "/agents/" + url.PathEscape("DQNAgent;priority;150-150") + "/episodes"

	var episodes []telemetry.Episode
	assert.Equal(t, http.StatusOK, get(t, srv, path+"?limit=2", &episodes))
	require.Len(t, episodes, 2)
	assert.Equal(t, 3, episodes[0].Episode)
	assert.Equal(t, []float64{100, 101}, episodes[1].Y)

	episodes = nil
	assert.Equal(t, http.StatusOK, get(t, srv, path, &episodes))
	assert.Len(t, episodes, 3)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, path+"?limit=-1", nil))
	assert.Equal(t, http.StatusNotFound,
		get(t, srv, "/agents/PPOAgent/episodes", nil))
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, srv, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}
