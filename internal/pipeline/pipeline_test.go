package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/rowguard/internal/config"
	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/record"
	"github.com/veridian-systems/rowguard/internal/source"
	"github.com/veridian-systems/rowguard/internal/state"
)

type mockRuleSource struct {
	fetch func(ctx context.Context) ([]models.RuleDefinition, error)
}

func (m *mockRuleSource) FetchRules(ctx context.Context) ([]models.RuleDefinition, error) {
	return m.fetch(ctx)
}

type mockRecordSource struct {
	fetch func(ctx context.Context, artifact string) ([]*record.Record, error)
}

func (m *mockRecordSource) FetchRecords(ctx context.Context, artifact string) ([]*record.Record, error) {
	return m.fetch(ctx, artifact)
}

type mockWriter struct {
	calls int
	write func(ctx context.Context, call int, batch []models.Violation) (models.WriteResult, error)
}

func (m *mockWriter) Write(ctx context.Context, batch []models.Violation) (models.WriteResult, error) {
	m.calls++
	return m.write(ctx, m.calls, batch)
}

func staticRules(defs ...models.RuleDefinition) *mockRuleSource {
	return &mockRuleSource{fetch: func(context.Context) ([]models.RuleDefinition, error) {
		return defs, nil
	}}
}

func staticRecords(records ...*record.Record) *mockRecordSource {
	return &mockRecordSource{fetch: func(context.Context, string) ([]*record.Record, error) {
		return records, nil
	}}
}

func acceptAll() *mockWriter {
	return &mockWriter{write: func(_ context.Context, _ int, batch []models.Violation) (models.WriteResult, error) {
		return models.WriteResult{Written: len(batch)}, nil
	}}
}

func amountRecord(a float64) *record.Record {
	rec := record.New()
	rec.Set("amount", record.Number(a))
	return rec
}

func fastRetry() config.PipelineConfig {
	return config.PipelineConfig{
		Workers: 2,
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func negAmountRule(id string) models.RuleDefinition {
	return models.RuleDefinition{ID: id, Description: "negative amounts", Predicate: "amount < 0"}
}

func TestRun_HappyPath(t *testing.T) {
	writer := acceptAll()
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(100), amountRecord(-50), amountRecord(-10)),
		writer, nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch-2026-08-25.csv")
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "batch-2026-08-25.csv", summary.Artifact)
	assert.Equal(t, 3, summary.RecordsProcessed)
	assert.Equal(t, 1, summary.RulesApplied)
	assert.Zero(t, summary.RulesFaulted)
	assert.Equal(t, 2, summary.ViolationsFound)
	assert.Equal(t, 2, summary.ViolationsWritten)
	assert.Zero(t, summary.ViolationsRejected)
	assert.Equal(t, 1, writer.calls)
}

func TestRun_CompileFaultDoesNotFailRun(t *testing.T) {
	c := New(
		staticRules(
			negAmountRule("R001"),
			models.RuleDefinition{ID: "R002", Predicate: "amount <"},
			models.RuleDefinition{ID: "R003", Predicate: "amount > 1000"},
		),
		staticRecords(amountRecord(-50)),
		acceptAll(), nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err, "one bad rule must not block the others")

	assert.Equal(t, 2, summary.RulesApplied)
	assert.Equal(t, 1, summary.RulesFaulted)
	require.Len(t, summary.Faults, 1)
	assert.Equal(t, "R002", summary.Faults[0].RuleID)
	assert.Equal(t, 1, summary.ViolationsFound)
}

func TestRun_DuplicateRuleIDs(t *testing.T) {
	c := New(
		staticRules(negAmountRule("R001"), negAmountRule("R001")),
		staticRecords(amountRecord(-1)),
		acceptAll(), nil, fastRetry(), logging.Discard(),
	)

	_, err := c.Run(context.Background(), "batch.csv")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageFetchRules, runErr.Stage)
	assert.Contains(t, runErr.Error(), "duplicate rule id")
}

func TestRun_RuleSourceUnavailable(t *testing.T) {
	c := New(
		&mockRuleSource{fetch: func(context.Context) ([]models.RuleDefinition, error) {
			return nil, source.ErrUnavailable
		}},
		staticRecords(amountRecord(-1)),
		acceptAll(), nil, fastRetry(), logging.Discard(),
	)

	_, err := c.Run(context.Background(), "batch.csv")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageFetchRules, runErr.Stage)
	assert.ErrorIs(t, err, source.ErrUnavailable)
}

func TestRun_RecordSourceUnavailable(t *testing.T) {
	c := New(
		staticRules(negAmountRule("R001")),
		&mockRecordSource{fetch: func(context.Context, string) ([]*record.Record, error) {
			return nil, source.ErrUnavailable
		}},
		acceptAll(), nil, fastRetry(), logging.Discard(),
	)

	_, err := c.Run(context.Background(), "batch.csv")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageFetchRecords, runErr.Stage)
}

func TestRun_EmptyRuleSet(t *testing.T) {
	writer := acceptAll()
	c := New(staticRules(), staticRecords(amountRecord(-1)), writer, nil, fastRetry(), logging.Discard())

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err, "an empty rule set is a vacuous success by default")
	assert.Zero(t, summary.ViolationsFound)
	assert.Zero(t, writer.calls, "nothing to write means no sink round-trip")
}

func TestRun_EmptyRuleSetRequired(t *testing.T) {
	cfg := fastRetry()
	cfg.RequireRules = true
	c := New(staticRules(), staticRecords(amountRecord(-1)), acceptAll(), nil, cfg, logging.Discard())

	_, err := c.Run(context.Background(), "batch.csv")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageFetchRules, runErr.Stage)
}

func TestRun_EmptyRecordBatch(t *testing.T) {
	writer := acceptAll()
	c := New(staticRules(negAmountRule("R001")), staticRecords(), writer, nil, fastRetry(), logging.Discard())

	summary, err := c.Run(context.Background(), "empty.csv")
	require.NoError(t, err)
	assert.Zero(t, summary.RecordsProcessed)
	assert.Zero(t, summary.ViolationsFound)
	assert.Zero(t, writer.calls)
}

func TestRun_SinkTransientThenSuccess(t *testing.T) {
	writer := &mockWriter{write: func(_ context.Context, call int, batch []models.Violation) (models.WriteResult, error) {
		if call == 1 {
			return models.WriteResult{}, errors.New("connection refused")
		}
		return models.WriteResult{Written: len(batch)}, nil
	}}
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1), amountRecord(-2)),
		writer, nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ViolationsWritten)
	assert.Equal(t, 2, writer.calls)
}

func TestRun_SinkRetriesOnlyRejectedSubset(t *testing.T) {
	var secondBatch []models.Violation
	writer := &mockWriter{write: func(_ context.Context, call int, batch []models.Violation) (models.WriteResult, error) {
		if call == 1 {
			// Accept all but the first violation.
			rejections := []models.Rejection{{ViolationID: batch[0].ViolationID, Cause: "mapping conflict"}}
			return models.WriteResult{Written: len(batch) - 1, Rejected: 1, Rejections: rejections}, nil
		}
		secondBatch = batch
		return models.WriteResult{Written: len(batch)}, nil
	}}
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1), amountRecord(-2), amountRecord(-3)),
		writer, nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ViolationsWritten)
	assert.Zero(t, summary.ViolationsRejected)
	require.Len(t, secondBatch, 1, "only the rejected violation is retried")
}

func TestRun_SinkUnreachable(t *testing.T) {
	writer := &mockWriter{write: func(context.Context, int, []models.Violation) (models.WriteResult, error) {
		return models.WriteResult{}, errors.New("connection refused")
	}}
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1)),
		writer, nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, StageWriteViolations, runErr.Stage)
	assert.Equal(t, 3, writer.calls, "every attempt is used before giving up")
	assert.Equal(t, 1, summary.ViolationsFound)
	assert.Zero(t, summary.ViolationsWritten)
}

func TestRun_PersistentRejectionIsPartialSuccess(t *testing.T) {
	writer := &mockWriter{write: func(_ context.Context, _ int, batch []models.Violation) (models.WriteResult, error) {
		// The last violation of each batch never lands.
		last := batch[len(batch)-1]
		return models.WriteResult{
			Written:    len(batch) - 1,
			Rejected:   1,
			Rejections: []models.Rejection{{ViolationID: last.ViolationID, Cause: "document too large"}},
		}, nil
	}}
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1), amountRecord(-2)),
		writer, nil, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err, "a partially delivered batch is not a failed run")
	assert.Equal(t, 1, summary.ViolationsWritten)
	assert.Equal(t, 1, summary.ViolationsRejected)
	assert.Equal(t, 3, writer.calls)
}

func TestRun_SkipProcessedArtifact(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := state.NewManager(client, true)

	cfg := fastRetry()
	cfg.SkipProcessed = true
	cfg.ProcessedTTL = time.Hour

	writer := acceptAll()
	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1)),
		writer, st, cfg, logging.Discard(),
	)

	first, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, writer.calls)

	second, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, writer.calls, "a processed artifact never reaches the sink again")

	third, err := c.Run(context.Background(), "other.csv")
	require.NoError(t, err)
	assert.False(t, third.Skipped, "markers are per artifact")
	assert.Equal(t, 2, writer.calls)
}

func TestRun_StateFailureDoesNotBlockRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := state.NewManager(client, true)
	mr.Close() // markers unreachable for the whole run

	cfg := fastRetry()
	cfg.SkipProcessed = true

	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1)),
		acceptAll(), st, cfg, logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err, "state tracking is advisory, not load-bearing")
	assert.Equal(t, 1, summary.ViolationsWritten)
}

func TestRun_SavesLastRunSummary(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := state.NewManager(client, true)

	c := New(
		staticRules(negAmountRule("R001")),
		staticRecords(amountRecord(-1)),
		acceptAll(), st, fastRetry(), logging.Discard(),
	)

	summary, err := c.Run(context.Background(), "batch.csv")
	require.NoError(t, err)

	saved, err := st.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, saved.RunID)
	assert.Equal(t, 1, saved.ViolationsWritten)
}

func TestWriteWithRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &mockWriter{write: func(context.Context, int, []models.Violation) (models.WriteResult, error) {
		cancel()
		return models.WriteResult{}, errors.New("connection refused")
	}}

	cfg := fastRetry()
	cfg.Retry.InitialBackoff = time.Minute
	c := New(staticRules(), staticRecords(), writer, nil, cfg, logging.Discard())

	written, _, err := c.writeWithRetry(ctx, []models.Violation{{ViolationID: "v1"}}, logging.Discard())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, written)
	assert.Equal(t, 1, writer.calls, "cancellation cuts the backoff wait short")
}

func TestCompileRules(t *testing.T) {
	rules, faults, err := compileRules([]models.RuleDefinition{
		negAmountRule("R001"),
		{ID: "R002", Predicate: "status =="},
	})
	require.NoError(t, err)
	assert.Len(t, rules, 1)
	require.Len(t, faults, 1)
	assert.Equal(t, "R002", faults[0].RuleID)
	assert.NotEmpty(t, faults[0].Cause)
}
