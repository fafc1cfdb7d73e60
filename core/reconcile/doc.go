// Package reconcile keeps an identity provider in step with one or more
// authoritative user sources.
//
// A run is a single pass over full snapshots of both sides:
//
//  1. Fetch: every Source and the Provider population are read concurrently.
//     Any fetch failure aborts the run before a single mutation.
//  2. Canonicalize: raw records are mapped onto CanonicalUser through a
//     per-source AttributeMapping. Records that cannot be mapped (multiple
//     values, missing external id, malformed status, colliding ids) are
//     rejected individually and their external ids are quarantined.
//  3. Reconcile: the canonical population is diffed against the provider by
//     external id, producing one Action per id (create, update, disable,
//     noop, skip, conflict).
//  4. Execute: actions run sequentially or on a bounded worker pool. Each
//     action has its own timeout and never interrupts another.
//  5. Report: every outcome lands in a RunReport whose exit code separates
//     a clean run from one where some users failed.
//
// Users are never deleted. A user missing from every source, or flagged as
// disabled through the status bitmask, is deactivated; a user that comes
// back is re-enabled and updated in place.
//
// # Usage Example
//
//	spec := &reconcile.Spec{
//	    Sources: []reconcile.SourceSpec{
//	        {Source: ldapSource, Mapping: mapping},
//	    },
//	    Provider:      zitadelClient,
//	    Features:      features,
//	    ActionTimeout: 30 * time.Second,
//	    Workers:       4,
//	}
//
//	report, err := reconcile.ReconcileAndApply(ctx, spec, logger)
//	if err != nil {
//	    // fatal: nothing was changed
//	}
//	os.Exit(report.ExitCode())
//
// The plan can also be computed without applying it:
//
//	plan, err := reconcile.ReconcileWithPlan(ctx, spec)
package reconcile
