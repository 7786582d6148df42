// Package store provides the SQLite document repository.
//
// Every entity class lives in its own collection table:
//
//	CREATE TABLE <collection> (id TEXT PRIMARY KEY, doc TEXT NOT NULL)
//
// where doc is the JSON storage record. Collections and their indexes are
// listed in the catalog tables created by schema.sql so that tooling can
// inspect a database without knowing the entity classes.
//
// # Critical Patterns
//
// Deterministic results:
//   - Every SELECT orders by the requested attribute and then by
//     id ASC COLLATE BINARY. Identities are time ordered, so identity order
//     is insertion order.
//
// Merge upserts:
//   - INSERT ... ON CONFLICT(id) DO UPDATE SET doc = json_patch(doc, excluded.doc)
//   - A batch runs in one transaction; a unique index violation rolls the
//     whole batch back.
//
// Times are stored as fixed-width UTC text (querysql.TimeLayout) so that
// text comparison and ordering agree with time comparison.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
