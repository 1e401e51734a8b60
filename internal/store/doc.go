// Package store provides the SQLite-backed delivery journal.
//
// The journal records two things:
//   - Cycles: one row per polling cycle of a recipe, with classification counts
//   - Deliveries: one row per dispatched action, delivered or failed
//
// It is an audit trail for operators (the history command and the admin
// API). Change detection never reads it: a restarted engine rebuilds its
// snapshot from a full fetch.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as fixed-width UTC text so that lexical order is
// chronological order.
package store
