// Package state tracks cross-run pipeline state in Redis: which artifacts
// have already produced a completed run, and the most recent run summary.
//
// The processed-artifact marker makes re-delivered trigger events cheap to
// skip. It is advisory only: delivery stays at-least-once, and losing Redis
// merely means a duplicate run whose violations carry fresh identifiers.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veridian-systems/rowguard/internal/models"
)

const (
	processedKeyPrefix = "rowguard:processed:"
	lastRunKey         = "rowguard:lastrun"
)

// ErrNoLastRun is returned by LastRun before any run has completed.
var ErrNoLastRun = errors.New("no run recorded")

// Manager stores pipeline state in Redis. With no client configured every
// operation degrades to a no-op, so the pipeline runs identically without
// Redis.
type Manager struct {
	redis   *redis.Client
	enabled bool
}

// NewManager creates a state manager. Passing a nil client disables it.
func NewManager(client *redis.Client, enabled bool) *Manager {
	return &Manager{redis: client, enabled: enabled}
}

// IsEnabled reports whether state tracking is active.
func (m *Manager) IsEnabled() bool {
	return m.enabled && m.redis != nil
}

// IsProcessed reports whether the artifact already has a completed run marker.
func (m *Manager) IsProcessed(ctx context.Context, artifact string) (bool, error) {
	if !m.IsEnabled() {
		return false, nil
	}
	n, err := m.redis.Exists(ctx, processedKey(artifact)).Result()
	if err != nil {
		return false, fmt.Errorf("check processed marker: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records a completed run for the artifact. The marker expires
// after ttl so storage cannot grow without bound.
func (m *Manager) MarkProcessed(ctx context.Context, artifact string, ttl time.Duration) error {
	if !m.IsEnabled() {
		return nil
	}
	if err := m.redis.Set(ctx, processedKey(artifact), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("set processed marker: %w", err)
	}
	return nil
}

// SaveLastRun stores the most recent run summary for operators.
func (m *Manager) SaveLastRun(ctx context.Context, summary models.RunSummary) error {
	if !m.IsEnabled() {
		return nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := m.redis.Set(ctx, lastRunKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save run summary: %w", err)
	}
	return nil
}

// LastRun retrieves the most recent run summary.
func (m *Manager) LastRun(ctx context.Context) (models.RunSummary, error) {
	var summary models.RunSummary
	if !m.IsEnabled() {
		return summary, ErrNoLastRun
	}
	data, err := m.redis.Get(ctx, lastRunKey).Result()
	if errors.Is(err, redis.Nil) {
		return summary, ErrNoLastRun
	}
	if err != nil {
		return summary, fmt.Errorf("load run summary: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return summary, fmt.Errorf("unmarshal run summary: %w", err)
	}
	return summary, nil
}

func processedKey(artifact string) string {
	sum := sha256.Sum256([]byte(artifact))
	return processedKeyPrefix + hex.EncodeToString(sum[:16])
}
