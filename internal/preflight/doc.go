// Package preflight checks that the environment can hold and serve index
// generations before wikisearch starts work.
//
// The package validates:
//   - The data directory exists and is writable
//   - Free disk space under the data directory
//   - File descriptor limits (each open index holds many segment files)
//   - Whether another process is running a rebuild
//   - Whether the current generation's physical index is present
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir, LockDir: locks})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
