// Package repository provides the Postgres-backed rule source.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/source"
)

// PostgresRuleSource reads rule definitions from the rules_definition table.
// It implements source.RuleSource.
type PostgresRuleSource struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleSource connects a pool to the rule store and verifies it is
// reachable.
func NewPostgresRuleSource(ctx context.Context, connString string) (*PostgresRuleSource, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRuleSource{pool: pool}, nil
}

// Pool exposes the underlying pool so the Postgres violation sink can share
// the same connections.
func (r *PostgresRuleSource) Pool() *pgxpool.Pool { return r.pool }

// Close releases the connection pool.
func (r *PostgresRuleSource) Close() { r.pool.Close() }

// Ping reports whether the rule store is reachable.
func (r *PostgresRuleSource) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}

// FetchRules returns all enabled rule definitions in creation order. The
// order fixes violation batch ordering for the run.
func (r *PostgresRuleSource) FetchRules(ctx context.Context) ([]models.RuleDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT rule_id, rule_description, rule_predicate
		FROM rules_definition
		WHERE disabled_at IS NULL
		ORDER BY created_at, rule_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query rules: %v", source.ErrUnavailable, err)
	}
	defer rows.Close()

	var defs []models.RuleDefinition
	for rows.Next() {
		var def models.RuleDefinition
		if err := rows.Scan(&def.ID, &def.Description, &def.Predicate); err != nil {
			return nil, fmt.Errorf("%w: scan rule: %v", source.ErrUnavailable, err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read rules: %v", source.ErrUnavailable, err)
	}

	return defs, nil
}

// UpsertRule inserts or replaces one rule definition. Used by the CLI to load
// rule files into the store.
func (r *PostgresRuleSource) UpsertRule(ctx context.Context, def models.RuleDefinition) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO rules_definition (rule_id, rule_description, rule_predicate, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (rule_id) DO UPDATE
		SET rule_description = EXCLUDED.rule_description,
		    rule_predicate   = EXCLUDED.rule_predicate,
		    disabled_at      = NULL
	`

	if _, err := r.pool.Exec(ctx, query, def.ID, def.Description, def.Predicate); err != nil {
		return fmt.Errorf("upsert rule %s: %w", def.ID, err)
	}
	return nil
}

// DisableRule marks a rule so FetchRules no longer returns it.
func (r *PostgresRuleSource) DisableRule(ctx context.Context, ruleID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE rules_definition SET disabled_at = NOW() WHERE rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("disable rule %s: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	return nil
}
