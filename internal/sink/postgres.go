package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-systems/rowguard/internal/models"
)

// PostgresWriter appends violations to the rule_violations table with one
// batched round-trip. Each insert is accounted for individually so partial
// failures report exactly which rows were refused.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter creates a writer over an existing pool. The pool is
// shared with the rule repository; the writer does not own its lifecycle.
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{pool: pool}
}

// Write inserts the batch. A transport-level failure before any statement
// runs returns an error with the batch unchanged; statement-level failures
// are reported per row in the result.
func (w *PostgresWriter) Write(ctx context.Context, violations []models.Violation) (models.WriteResult, error) {
	var res models.WriteResult
	if len(violations) == 0 {
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, v := range violations {
		batch.Queue(`
			INSERT INTO rule_violations
			(violation_id, rule_id, rule_description, detected_at, details)
			VALUES ($1, $2, $3, $4, $5)
		`, v.ViolationID, v.RuleID, v.RuleDescription, v.DetectedAt, v.Details)
	}

	br := w.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, v := range violations {
		if _, err := br.Exec(); err != nil {
			res.Rejected++
			res.Rejections = append(res.Rejections, models.Rejection{
				ViolationID: v.ViolationID,
				Cause:       fmt.Sprintf("insert violation: %v", err),
			})
			continue
		}
		res.Written++
	}

	return res, nil
}
