// Package preflight checks that a build can run before it starts.
//
// The checks cover:
//   - Configuration completeness (source, table, target index)
//   - Write access to the data directory, where build locks live
//   - Free disk space where a local backend stores its index
//   - The open file descriptor limit
//   - Reachability of the source database and the backend
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithSourceProbe(probe))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
