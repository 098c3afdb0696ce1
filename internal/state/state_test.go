package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/rowguard/internal/models"
)

func testManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(client, true), mr
}

func TestProcessedMarker(t *testing.T) {
	m, mr := testManager(t)
	ctx := context.Background()

	processed, err := m.IsProcessed(ctx, "batch.csv")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, m.MarkProcessed(ctx, "batch.csv", time.Hour))

	processed, err = m.IsProcessed(ctx, "batch.csv")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = m.IsProcessed(ctx, "other.csv")
	require.NoError(t, err)
	assert.False(t, processed, "markers are keyed per artifact")

	mr.FastForward(2 * time.Hour)
	processed, err = m.IsProcessed(ctx, "batch.csv")
	require.NoError(t, err)
	assert.False(t, processed, "markers expire with their ttl")
}

func TestLastRunRoundTrip(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, err := m.LastRun(ctx)
	assert.ErrorIs(t, err, ErrNoLastRun)

	summary := models.RunSummary{
		RunID:             "0190-test",
		Artifact:          "batch.csv",
		RecordsProcessed:  10,
		ViolationsFound:   3,
		ViolationsWritten: 3,
	}
	require.NoError(t, m.SaveLastRun(ctx, summary))

	got, err := m.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, summary.Artifact, got.Artifact)
	assert.Equal(t, 3, got.ViolationsWritten)
}

func TestDisabledManagerIsNoOp(t *testing.T) {
	m := NewManager(nil, false)
	ctx := context.Background()

	assert.False(t, m.IsEnabled())

	processed, err := m.IsProcessed(ctx, "batch.csv")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, m.MarkProcessed(ctx, "batch.csv", time.Hour))
	require.NoError(t, m.SaveLastRun(ctx, models.RunSummary{RunID: "x"}))

	_, err = m.LastRun(ctx)
	assert.ErrorIs(t, err, ErrNoLastRun)
}

func TestIsProcessed_RedisDown(t *testing.T) {
	m, mr := testManager(t)
	mr.Close()

	_, err := m.IsProcessed(context.Background(), "batch.csv")
	assert.Error(t, err)
}
