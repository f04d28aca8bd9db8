// Package store persists work-order tasks, their components, and the
// per-component production stages in SQLite.
//
// Reads are available on both *Store and *Tx. Mutations are only available
// on *Tx so that every write, and any queue renumbering attached to it,
// commits or rolls back as one unit. WithTx retries the whole transaction
// when SQLite reports the database as busy.
//
// The schema is embedded (schema.sql) and carries a schema_version row; a
// mismatch fails Open with ErrSchemaMismatch rather than migrating in place.
// Directory tables (departments, machines, work subtypes) are seeded on
// first open and exposed read-only through Directory.
package store
