// Package source defines the external collaborators a pipeline run reads
// from: a record source supplying the batch to check and a rule source
// supplying rule definitions.
package source

import (
	"context"
	"errors"

	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/record"
)

var (
	// ErrUnavailable marks a source that could not be reached at all.
	// Fatal to the run: there is nothing to evaluate.
	ErrUnavailable = errors.New("source unavailable")

	// ErrParse marks a record batch that could not be decoded.
	// Also fatal: a malformed batch yields no valid records.
	ErrParse = errors.New("malformed record batch")
)

// RecordSource supplies the record set for one run. The artifact reference
// comes from the trigger payload and identifies the batch to fetch.
type RecordSource interface {
	FetchRecords(ctx context.Context, artifact string) ([]*record.Record, error)
}

// RuleSource supplies rule definitions. Compiling predicate text is the
// engine's responsibility, not the source's; unparsable predicates become
// per-rule faults downstream rather than source errors here.
type RuleSource interface {
	FetchRules(ctx context.Context) ([]models.RuleDefinition, error)
}
