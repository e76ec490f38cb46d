package doctxn

import (
	"context"

	"github.com/sharedcode/doctxn/changes"
)

// DocumentStore reads and conditionally writes documents.
type DocumentStore interface {
	// Fetch returns the current document. A missing document yields an error wrapping ErrNotFound.
	Fetch(ctx context.Context, loc Locator) (Document, error)
	// Write stores doc if the store's current revision equals expectedRev ("" for a new
	// document) and returns the new revision. A stale revision yields a *ConflictError.
	Write(ctx context.Context, loc Locator, doc Document, expectedRev string) (string, error)
}

// ChangeTracker compares two snapshots of a document.
type ChangeTracker interface {
	// Unchanged reports whether current equals original, ignoring bookkeeping fields.
	Unchanged(original, current map[string]any) (bool, error)
	// Diff describes what changed, for observability.
	Diff(original, current map[string]any) (changes.ChangeSet, error)
}

// Mutation changes doc in place and returns nil, or returns a replacement document.
// A non-nil error fails the transaction.
type Mutation func(ctx context.Context, doc Document) (Document, error)
