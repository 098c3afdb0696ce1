// Package sink delivers violation batches to durable storage.
//
// Delivery is at-least-once: every violation carries a freshly generated
// identifier, so re-sending a batch after a partial failure appends rows
// instead of overwriting. Writers surface exactly which violations a sink
// refused so the caller can retry only that subset.
package sink

import (
	"context"

	"github.com/veridian-systems/rowguard/internal/models"
)

// Writer appends a violation batch to a durable store as one logical
// operation.
//
// The returned WriteResult accounts for every violation in the batch: written
// plus rejected always equals the batch size. A non-nil error means the write
// could not be attempted at all (the batch state is unchanged); per-row
// failures are reported through the result instead. Writing an empty batch is
// a no-op success with no sink round-trip.
type Writer interface {
	Write(ctx context.Context, violations []models.Violation) (models.WriteResult, error)
}
