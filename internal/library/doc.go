// Package library persists generated content records in SQLite.
//
// The Store owns the database connection, schema initialization, and the
// natural-key uniqueness contract: SaveIfAbsent never duplicates a record
// for a subject that was already saved, and re-saving returns the original
// record's id with the original payload intact (first-write-wins).
//
// Records are never auto-deleted; removal is an explicit, idempotent,
// id-addressed operation. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package library
