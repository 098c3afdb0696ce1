// Package models holds the domain types shared across the rowguard pipeline.
package models

import (
	"encoding/json"
	"time"
)

// RuleDefinition is a rule as supplied by a rule source, before its predicate
// text has been compiled.
type RuleDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Predicate   string `json:"predicate" yaml:"predicate"`
}

// Violation is evidence that one record matched one rule's predicate.
//
// ViolationID is generated fresh per instance, never derived from rule and
// record, so re-delivering the same batch after a partial sink failure appends
// new rows instead of colliding. Duplicates across retries are the accepted
// cost of at-least-once delivery.
type Violation struct {
	ViolationID     string          `json:"violation_id"`
	RuleID          string          `json:"rule_id"`
	RuleDescription string          `json:"rule_description"`
	DetectedAt      time.Time       `json:"detected_at"`
	Details         json.RawMessage `json:"details"`
}

// RuleFault records a non-fatal, per-rule failure: an unparsable predicate or
// a rule that could not evaluate against any record.
type RuleFault struct {
	RuleID string `json:"rule_id"`
	Cause  string `json:"cause"`
}

// Rejection identifies one violation a sink refused, with the sink's reason.
type Rejection struct {
	ViolationID string `json:"violation_id"`
	Cause       string `json:"cause"`
}

// WriteResult reports the outcome of one sink write attempt.
type WriteResult struct {
	Written    int         `json:"written"`
	Rejected   int         `json:"rejected"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// RunSummary is the exit contract of a single pipeline run.
type RunSummary struct {
	RunID              string      `json:"run_id"`
	Artifact           string      `json:"artifact"`
	Skipped            bool        `json:"skipped,omitempty"`
	StartedAt          time.Time   `json:"started_at"`
	Duration           string      `json:"duration"`
	RecordsProcessed   int         `json:"records_processed"`
	RulesApplied       int         `json:"rules_applied"`
	RulesFaulted       int         `json:"rules_faulted"`
	RecordsSkipped     int         `json:"records_skipped"`
	ViolationsFound    int         `json:"violations_found"`
	ViolationsWritten  int         `json:"violations_written"`
	ViolationsRejected int         `json:"violations_rejected"`
	Faults             []RuleFault `json:"faults,omitempty"`
}
