package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "db", "btc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestInsertAndRead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.InsertEpisode(ctx, Episode{RunID: "r", Episode: 1,
		Reward: 0.5, Cash: 900, Value: 110, AgentName: "DQNAgent;a",
		Steps: 20})
	require.NoError(t, err)
	_, err = s.InsertEpisode(ctx, Episode{RunID: "r", Episode: 2,
		Reward: -0.25, Cash: 1000, Value: 0, AgentName: "DQNAgent;a",
		Steps: 20, Y: []float64{1, 2.5, 3}, Signals: []float64{1, 0, -1}})
	require.NoError(t, err)

	episodes, err := s.Episodes(ctx, "DQNAgent;a", 0)
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	// Newest first
	assert.Equal(t, 2, episodes[0].Episode)
	assert.Equal(t, []float64{1, 2.5, 3}, episodes[0].Y)
	assert.Equal(t, []float64{1, 0, -1}, episodes[0].Signals)
	assert.Equal(t, -0.25, episodes[0].Reward)
	assert.False(t, episodes[0].CreatedAt.IsZero())

	assert.Equal(t, 1, episodes[1].Episode)
	assert.Nil(t, episodes[1].Y)
	assert.Nil(t, episodes[1].Signals)
	assert.Equal(t, 900.0, episodes[1].Cash)

	latest, err := s.Episodes(ctx, "DQNAgent;a", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 2, latest[0].Episode)
}

func TestDeleteAgentOnlyRemovesThatAgent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, name := range []string{"DQNAgent;a", "PPOAgent;b", "DQNAgent;a"} {
		_, err := s.InsertEpisode(ctx, Episode{Episode: 1, AgentName: name})
		require.NoError(t, err)
	}

	removed, err := s.DeleteAgent(ctx, "DQNAgent;a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	agents, err := s.Agents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "PPOAgent;b", agents[0].Name)
	assert.Equal(t, 1, agents[0].Episodes)

	// Names are bound, not interpolated
	_, err = s.DeleteAgent(ctx, "x' OR '1'='1")
	require.NoError(t, err)
	left, err := s.Episodes(ctx, "PPOAgent;b", 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestAgents(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i, r := range []float64{0.1, 0.7, 0.3} {
		_, err := s.InsertEpisode(ctx, Episode{Episode: i + 1, Reward: r,
			AgentName: "PPOAgent"})
		require.NoError(t, err)
	}

	agents, err := s.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AgentSummary{{Name: "PPOAgent", Episodes: 3,
		LastEpisode: 3, BestReward: 0.7}}, agents)
}
