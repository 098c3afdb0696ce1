// Package engine applies an ordered collection of rules to a record set,
// isolating failures per rule and aggregating the violations found.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/record"
	"github.com/veridian-systems/rowguard/internal/rule"
)

// Result aggregates one evaluation pass over the full record set.
type Result struct {
	// Violations in rule-fetch order, then record order within a rule.
	// Stable for tests; consumers must not rely on it beyond that.
	Violations []models.Violation

	// Faults lists rules that failed entirely and produced nothing.
	Faults []models.RuleFault

	// RecordsSkipped counts individual record evaluations abandoned due to
	// runtime faults on rules that otherwise succeeded.
	RecordsSkipped int
}

// Engine evaluates rules concurrently over an immutable record set.
type Engine struct {
	workers int
	logger  *logging.Logger
}

// New creates an engine with the given worker count. Workers below one fall
// back to sequential evaluation.
func New(workers int, logger *logging.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{workers: workers, logger: logger.With(logging.Component("engine"))}
}

type ruleOutcome struct {
	violations []models.Violation
	evalFaults []rule.EvalFault
}

// Run applies every rule to the full record set. Rules never see each other's
// violations and a failing rule never blocks the rest. Distinct rules share
// only read-only access to the records, so they are evaluated by independent
// workers; output ordering is restored from rule position afterwards, not
// taken from completion order.
func (e *Engine) Run(ctx context.Context, rules []*rule.Rule, records []*record.Record) Result {
	outcomes := make([]ruleOutcome, len(rules))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r := rules[idx]
				violations, faults := r.Apply(records)
				outcomes[idx] = ruleOutcome{violations: violations, evalFaults: faults}
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range rules {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	var res Result
	for i := 0; i < dispatched; i++ {
		r := rules[i]
		out := outcomes[i]

		// A rule that faulted on every record and matched nothing has a
		// structural problem; report the whole rule, not each row.
		if len(records) > 0 && len(out.evalFaults) == len(records) && len(out.violations) == 0 {
			res.Faults = append(res.Faults, models.RuleFault{
				RuleID: r.ID,
				Cause:  fmt.Sprintf("failed to evaluate against any record: %s", out.evalFaults[0].Cause),
			})
			e.logger.Warn("rule faulted on every record",
				logging.RuleID(r.ID),
				logging.Records(len(records)))
			continue
		}

		for _, f := range out.evalFaults {
			res.RecordsSkipped++
			e.logger.Warn("record skipped during evaluation",
				logging.RuleID(r.ID),
				"record_index", f.RecordIndex,
				"cause", f.Cause)
		}
		res.Violations = append(res.Violations, out.violations...)
	}

	if dispatched < len(rules) {
		e.logger.Warn("evaluation canceled before all rules ran",
			logging.Rules(len(rules)),
			"evaluated", dispatched)
	}

	return res
}
