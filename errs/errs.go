// Package errs defines the error kinds used across the engine.
//
// Every kind follows the teacher convention from auth.ErrNotAuthorized:
// a package-level errors.Kind built with errors.NewKind, instantiated
// with New(args...) at the point something goes wrong, and checked with
// Is/kind.Is(err) by callers that need to branch on the failure class.
package errs

import "gopkg.in/src-d/go-errors.v1"

var (
	// InvalidInput covers schema mismatches, NULL/inf targets, a
	// negative seed, an empty population, or a bad quantile.
	InvalidInput = errors.NewKind("invalid input: %s")

	// NotFound covers a missing column, pipeline, data frame or project.
	NotFound = errors.NewKind("not found: %s")

	// AlreadyFit is returned when Fit is called on a populated ensemble.
	AlreadyFit = errors.NewKind("ensemble is already fit")

	// Interrupted is returned when a fit or transform call observes a
	// cancellation request.
	Interrupted = errors.NewKind("interrupted")

	// LockTimeout is returned when a read/write lock acquisition with a
	// deadline expires before the lock was granted.
	LockTimeout = errors.NewKind("could not acquire lock: timeout")

	// DatabaseError wraps an error from the SQL verification bridge,
	// preserving the original vendor error via Cause.
	DatabaseError = errors.NewKind("database error: %s")

	// Corrupted is returned when persisted bytes fail a length or
	// byte-order sanity check on load.
	Corrupted = errors.NewKind("corrupted data: %s")
)
