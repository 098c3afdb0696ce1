// Package rule pairs a compiled predicate with its metadata and owns
// evaluation against a record set.
package rule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/predicate"
	"github.com/veridian-systems/rowguard/internal/record"
)

// Rule is a named, compiled predicate. Rules are immutable after Compile and
// safe to share read-only across concurrent evaluations.
type Rule struct {
	ID          string
	Description string
	expr        predicate.Expr
}

// Compile builds a Rule from a definition. Predicate syntax errors surface
// here, when rules are fetched, not during evaluation.
func Compile(def models.RuleDefinition) (*Rule, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("rule has empty id")
	}
	expr, err := predicate.Parse(def.Predicate)
	if err != nil {
		return nil, fmt.Errorf("rule %s: compile predicate: %w", def.ID, err)
	}
	return &Rule{ID: def.ID, Description: def.Description, expr: expr}, nil
}

// EvalFault records a runtime evaluation failure on a single record. The
// record is skipped for this rule; the rest of the set is still evaluated.
type EvalFault struct {
	RecordIndex int
	Cause       string
}

// Apply evaluates the rule against every record in order, emitting one
// violation per record whose predicate evaluates to true. Null and false
// results do not match. Zero records yields zero violations, not an error.
func (r *Rule) Apply(records []*record.Record) ([]models.Violation, []EvalFault) {
	var violations []models.Violation
	var faults []EvalFault

	for i, rec := range records {
		result, err := predicate.Evaluate(r.expr, rec)
		if err != nil {
			faults = append(faults, EvalFault{RecordIndex: i, Cause: err.Error()})
			continue
		}
		if result != predicate.True {
			continue
		}

		details, err := json.Marshal(rec)
		if err != nil {
			faults = append(faults, EvalFault{RecordIndex: i, Cause: fmt.Sprintf("serialize record: %v", err)})
			continue
		}

		id, _ := uuid.NewV7()
		violations = append(violations, models.Violation{
			ViolationID:     id.String(),
			RuleID:          r.ID,
			RuleDescription: r.Description,
			DetectedAt:      time.Now().UTC(),
			Details:         details,
		})
	}

	return violations, faults
}
