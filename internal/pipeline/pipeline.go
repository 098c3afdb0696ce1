// Package pipeline coordinates one rule-evaluation run: fetch rules, fetch
// records, evaluate, write violations.
//
// The coordinator extracts maximum signal from whatever rules are valid:
// per-rule and per-record faults are absorbed into the run summary, and only
// total failure (no rules reachable, no records readable, or nothing writable
// after retries) fails the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/rowguard/internal/config"
	"github.com/veridian-systems/rowguard/internal/engine"
	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/metrics"
	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/rule"
	"github.com/veridian-systems/rowguard/internal/sink"
	"github.com/veridian-systems/rowguard/internal/source"
	"github.com/veridian-systems/rowguard/internal/state"
)

// Run stages, reported on total failure so "nothing to evaluate" is
// distinguishable from "evaluation happened but delivery failed".
const (
	StageFetchRules      = "fetch_rules"
	StageFetchRecords    = "fetch_records"
	StageEvaluate        = "evaluate"
	StageWriteViolations = "write_violations"
)

// RunError is a total run failure, carrying the stage that failed.
type RunError struct {
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Coordinator ties the sources, engine, and sink together for single
// synchronous runs. It holds no per-run state and is safe for concurrent use.
type Coordinator struct {
	rules   source.RuleSource
	records source.RecordSource
	writer  sink.Writer
	state   *state.Manager
	engine  *engine.Engine
	cfg     config.PipelineConfig
	logger  *logging.Logger
}

// New wires a coordinator. The state manager may be disabled; everything else
// is required.
func New(rules source.RuleSource, records source.RecordSource, writer sink.Writer, st *state.Manager, cfg config.PipelineConfig, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	if st == nil {
		st = state.NewManager(nil, false)
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		cfg.Retry.MaxBackoff = cfg.Retry.InitialBackoff
	}
	return &Coordinator{
		rules:   rules,
		records: records,
		writer:  writer,
		state:   st,
		engine:  engine.New(cfg.Workers, logger),
		cfg:     cfg,
		logger:  logger.With(logging.Component("pipeline")),
	}
}

// Run executes one pass over the artifact's record batch and returns the run
// summary. Partial failures never produce an error; the returned error is
// non-nil only for the total-failure cases of the run state machine.
func (c *Coordinator) Run(ctx context.Context, artifact string) (models.RunSummary, error) {
	runUUID, _ := uuid.NewV7()
	started := time.Now()

	summary := models.RunSummary{
		RunID:     runUUID.String(),
		Artifact:  artifact,
		StartedAt: started.UTC(),
	}
	logger := c.logger.WithRun(summary.RunID).With(logging.Artifact(artifact))

	if c.cfg.SkipProcessed {
		processed, err := c.state.IsProcessed(ctx, artifact)
		if err != nil {
			logger.Warn("processed-marker lookup failed, continuing", logging.Error(err))
		} else if processed {
			logger.Info("artifact already processed, skipping run")
			summary.Skipped = true
			summary.Duration = time.Since(started).String()
			metrics.RunsTotal.WithLabelValues("skipped").Inc()
			return summary, nil
		}
	}

	// FetchRules
	defs, err := c.rules.FetchRules(ctx)
	if err != nil {
		return c.fail(summary, started, StageFetchRules, err, logger)
	}
	if len(defs) == 0 && c.cfg.RequireRules {
		return c.fail(summary, started, StageFetchRules, errors.New("rule source returned no rules"), logger)
	}

	rules, faults, err := compileRules(defs)
	if err != nil {
		// Duplicate rule ids are a configuration error, not a runtime fault.
		return c.fail(summary, started, StageFetchRules, err, logger)
	}
	summary.Faults = faults

	// FetchRecords
	records, err := c.records.FetchRecords(ctx, artifact)
	if err != nil {
		return c.fail(summary, started, StageFetchRecords, err, logger)
	}
	summary.RecordsProcessed = len(records)
	logger.Info("fetched run inputs", logging.Rules(len(rules)), logging.Records(len(records)))

	// Evaluate
	evalStart := time.Now()
	result := c.engine.Run(ctx, rules, records)
	metrics.EvaluationDuration.Observe(time.Since(evalStart).Seconds())

	summary.Faults = append(summary.Faults, result.Faults...)
	summary.RulesFaulted = len(summary.Faults)
	summary.RulesApplied = len(rules) - len(result.Faults)
	summary.RecordsSkipped = result.RecordsSkipped
	summary.ViolationsFound = len(result.Violations)

	if err := ctx.Err(); err != nil {
		return c.fail(summary, started, StageEvaluate, err, logger)
	}

	// WriteViolations
	writeStart := time.Now()
	written, rejections, writeErr := c.writeWithRetry(ctx, result.Violations, logger)
	metrics.SinkWriteDuration.Observe(time.Since(writeStart).Seconds())

	summary.ViolationsWritten = written
	summary.ViolationsRejected = len(rejections)

	if writeErr != nil {
		return c.fail(summary, started, StageWriteViolations, writeErr, logger)
	}
	if len(result.Violations) > 0 && written == 0 {
		return c.fail(summary, started, StageWriteViolations,
			fmt.Errorf("no violations written after %d attempts", c.cfg.Retry.MaxAttempts), logger)
	}

	// Done
	if err := c.state.MarkProcessed(ctx, artifact, c.cfg.ProcessedTTL); err != nil {
		logger.Warn("mark artifact processed failed", logging.Error(err))
	}
	summary.Duration = time.Since(started).String()
	if err := c.state.SaveLastRun(ctx, summary); err != nil {
		logger.Warn("save run summary failed", logging.Error(err))
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RecordsProcessed.Add(float64(summary.RecordsProcessed))
	metrics.RulesFaulted.Add(float64(summary.RulesFaulted))
	metrics.ViolationsFound.Add(float64(summary.ViolationsFound))
	metrics.ViolationsWritten.Add(float64(summary.ViolationsWritten))
	metrics.ViolationsRejected.Add(float64(summary.ViolationsRejected))

	logger.Info("run complete",
		logging.Records(summary.RecordsProcessed),
		logging.Violations(summary.ViolationsFound),
		logging.Faults(summary.RulesFaulted),
		"violations_written", summary.ViolationsWritten,
		logging.Duration(time.Since(started)))

	return summary, nil
}

func (c *Coordinator) fail(summary models.RunSummary, started time.Time, stage string, err error, logger *logging.Logger) (models.RunSummary, error) {
	summary.Duration = time.Since(started).String()
	metrics.RunsTotal.WithLabelValues("failed").Inc()
	logger.Error("run failed", "stage", stage, logging.Error(err))
	return summary, &RunError{Stage: stage, Err: err}
}

// compileRules turns definitions into rules, collecting per-rule compile
// faults. Duplicate ids within one fetch are returned as a hard error.
func compileRules(defs []models.RuleDefinition) ([]*rule.Rule, []models.RuleFault, error) {
	seen := make(map[string]bool, len(defs))
	var rules []*rule.Rule
	var faults []models.RuleFault

	for _, def := range defs {
		if def.ID != "" && seen[def.ID] {
			return nil, nil, fmt.Errorf("duplicate rule id %q in rule source", def.ID)
		}
		seen[def.ID] = true

		r, err := rule.Compile(def)
		if err != nil {
			faults = append(faults, models.RuleFault{RuleID: def.ID, Cause: err.Error()})
			continue
		}
		rules = append(rules, r)
	}
	return rules, faults, nil
}

// writeWithRetry delivers the batch with bounded exponential backoff,
// retrying only the rejected subset of each attempt. It returns the total
// written count, the rejections left after the final attempt, and an error
// only when no attempt could reach the sink.
func (c *Coordinator) writeWithRetry(ctx context.Context, violations []models.Violation, logger *logging.Logger) (int, []models.Rejection, error) {
	if len(violations) == 0 {
		return 0, nil, nil
	}

	pending := violations
	written := 0
	var lastErr error
	var lastRejections []models.Rejection
	backoff := c.cfg.Retry.InitialBackoff

	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		res, err := c.writer.Write(ctx, pending)
		written += res.Written

		if err != nil {
			// Transport failure: the whole pending subset is still owed.
			lastErr = err
			lastRejections = rejectAll(pending, err)
			logger.Warn("sink write attempt failed",
				logging.Attempt(attempt), logging.Violations(len(pending)), logging.Error(err))
		} else {
			lastErr = nil
			lastRejections = res.Rejections
			if res.Rejected == 0 {
				return written, nil, nil
			}
			pending = filterByRejection(pending, res.Rejections)
			logger.Warn("sink rejected violations",
				logging.Attempt(attempt), "rejected", res.Rejected)
		}

		if attempt == c.cfg.Retry.MaxAttempts {
			break
		}
		metrics.SinkRetries.Inc()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return written, lastRejections, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > c.cfg.Retry.MaxBackoff {
			backoff = c.cfg.Retry.MaxBackoff
		}
	}

	if written == 0 && lastErr != nil {
		return written, lastRejections, fmt.Errorf("sink unreachable after %d attempts: %w", c.cfg.Retry.MaxAttempts, lastErr)
	}
	return written, lastRejections, nil
}

func rejectAll(violations []models.Violation, err error) []models.Rejection {
	out := make([]models.Rejection, len(violations))
	for i, v := range violations {
		out[i] = models.Rejection{ViolationID: v.ViolationID, Cause: err.Error()}
	}
	return out
}

func filterByRejection(violations []models.Violation, rejections []models.Rejection) []models.Violation {
	rejected := make(map[string]bool, len(rejections))
	for _, r := range rejections {
		rejected[r.ViolationID] = true
	}
	var out []models.Violation
	for _, v := range violations {
		if rejected[v.ViolationID] {
			out = append(out, v)
		}
	}
	return out
}
