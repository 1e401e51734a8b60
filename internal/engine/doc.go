// Package engine runs recipes: one polling runner per recipe, each fetching
// the watched table, classifying records against its snapshot and running
// the recipe's action chain for records that trigger.
//
// ARCHITECTURE:
//
// One Runner Per Recipe:
// Every registered recipe owns exactly one Runner and that runner's
// goroutine is the only writer of the recipe's snapshot. Runners share
// nothing with each other, so a slow or failing recipe never delays
// another.
//
// Cycle Flow:
// 1. Fetch every record from the recipe's Source
// 2. Classify each record (too_fresh, new, updated, unchanged) with the Detector
// 3. Evaluate the trigger and the recipe's top-level filters
// 4. Run the actions in declared order through the Executor
// 5. Stamp processed records in the snapshot, record last poll time
// 6. Sleep the poll interval, repeat until stopped
//
// Within a cycle the work is strictly sequential. Outputs produced by
// actions live in a per-cycle map and are discarded when the cycle ends.
//
// ERROR HANDLING:
//
// Errors are logged and the runner continues. A FetchError abandons the
// cycle; an ExecutionError fails one action and the cycle carries on with
// the remaining actions and records. Nothing is retried within a cycle: the
// next poll is the only retry.
//
// The runner state (idle, running, stopped) is an atomic value; starting is
// a compare-and-swap so concurrent start requests cannot both succeed.
package engine
