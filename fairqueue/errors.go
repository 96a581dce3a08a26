// Copyright 2025 The Seastar-Go Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file LICENSE.

package fairqueue

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Errors returned by this package fall into the three buckets spec.md §7
// describes:
//
//   - ConfigInvalid (construction time): not retriable, reported to the
//     caller.
//   - ContractViolation (operation time): a programmer error on the
//     caller's part — unregistering a nonempty class, queueing against an
//     unknown class id, and the like. These are built with
//     errors.AssertionFailedf so that, consistent with the rest of the
//     pack's convention for "this should never happen", the failure still
//     carries a reportable assertion marker instead of being an ordinary
//     error a caller might be tempted to retry.
//   - Backpressure (grab deficiency, CantPreempt): not errors at all; they
//     are communicated through the grabResult enum internal to queue.go
//     and never escape as an `error`.

// newConfigInvalidError builds the error NewFairGroup returns when its
// configuration is internally inconsistent (degenerate rates, an
// oversized rate factor, or a minimum ticket whose capacity exceeds the
// bucket limit).
func newConfigInvalidError(format string, args ...interface{}) error {
	return errors.Newf("fairqueue: invalid configuration: "+format, safeArgs(args)...)
}

// newContractViolationError builds the error returned when a caller
// violates the package's operational contract (spec.md §7
// ContractViolation): registering an id twice, unregistering a nonempty
// class, operating on an unregistered class id, or plugging a class that
// is already plugged. Releasing more capacity than was reserved is not
// detected: NotifyRequestFinished returns no error.
func newContractViolationError(format string, args ...interface{}) error {
	return errors.AssertionFailedf("fairqueue: "+format, safeArgs(args)...)
}

// safeArgs marks every argument as safe for redaction purposes. Every
// value this package's errors ever format is an internal scheduling
// identifier or a configuration knob (class ids, share counts, rate
// factors) — never caller data — so, like
// pkg/sql/opt/exec/execbuilder.Builder's use of redact.Safe around
// operator names in its own AssertionFailedf calls, none of it needs to
// be scrubbed from a redacted log.
func safeArgs(args []interface{}) []interface{} {
	safe := make([]interface{}, len(args))
	for i, a := range args {
		safe[i] = redact.Safe(a)
	}
	return safe
}
