// Package harness runs recipe scenarios against the real engine.
//
// A scenario scripts what the watched table returns on each poll and which
// webhook endpoints fail, then asserts on the deliveries the engine made.
// Runs are deterministic: the clock only moves by the poll interval and
// every id comes from a counter, so traces can be compared against golden
// files.
//
// # Scenario Format
//
//	name: chained_actions
//	description: "What this scenario validates"
//	poll_interval: 10s   # default 10s
//	fresh_window: 10s    # default 10s
//	recipe:              # a recipe document, as saved by the create command
//	  name: leads
//	  trigger: record_changed
//	  ...
//	responses:
//	  https://hooks.example.com/enrich: { score: 42 }
//	polls:
//	  - records: []                # poll 0 seeds the snapshot
//	  - records:
//	      - id: recA
//	        modified: -1m          # offset from the scenario start
//	        fields: { Status: new }
//	    fail: [https://hooks.example.com/enrich]
//	  - error: "service unavailable"
//	assertions:
//	  - type: delivered
//	    url: https://hooks.example.com/enrich
//	    record: recA
//	    poll: 1
//
// Poll 0 runs at the scenario start and seeds the snapshot; the first cycle
// follows immediately, and every later poll happens one poll interval after
// the previous one.
//
// # Assertion Types
//
//   - delivered: a successful delivery matches url, record and poll
//   - not_delivered: no successful delivery matches
//   - delivery_count: exactly count attempts match (any outcome unless set)
//   - delivery_order: records reached url in the given order
//   - journal: the journal holds count rows of table for the recipe
package harness
