package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across components.
const (
	FieldComponent  = "component"
	FieldRunID      = "run_id"
	FieldRuleID     = "rule_id"
	FieldArtifact   = "artifact"
	FieldRecords    = "records"
	FieldRules      = "rules"
	FieldViolations = "violations"
	FieldFaults     = "faults"
	FieldAttempt    = "attempt"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Component returns a slog attribute naming the emitting component.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// RuleID returns a slog attribute for a rule identifier.
func RuleID(id string) slog.Attr {
	return slog.String(FieldRuleID, id)
}

// Artifact returns a slog attribute for a record-source artifact reference.
func Artifact(ref string) slog.Attr {
	return slog.String(FieldArtifact, ref)
}

// Records returns a slog attribute for a record count.
func Records(n int) slog.Attr {
	return slog.Int(FieldRecords, n)
}

// Rules returns a slog attribute for a rule count.
func Rules(n int) slog.Attr {
	return slog.Int(FieldRules, n)
}

// Violations returns a slog attribute for a violation count.
func Violations(n int) slog.Attr {
	return slog.Int(FieldViolations, n)
}

// Faults returns a slog attribute for a fault count.
func Faults(n int) slog.Attr {
	return slog.Int(FieldFaults, n)
}

// Attempt returns a slog attribute for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Duration returns a slog attribute for elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
