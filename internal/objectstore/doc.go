// Package objectstore provides content-addressed storage of ledger records.
//
// Records are keyed by their address ("{kind}s/{digest}") and, when an
// author is given, additionally under "{authorDigest}/{kind}s/{digest}".
// Writes are idempotent: putting the same identity twice is a no-op that
// returns the same address. Reads recompute the digest and report a
// *DecodeError when the stored bytes do not match the key they live under.
//
// Storage is delegated to a Backend:
//   - localfs: one file per key under a root directory (atomic rename on replace)
//   - leveldb: a single LevelDB database
//   - memory: a map, for tests and the scenario harness
//
// The object store performs no referential checks; that is the ledger's job.
package objectstore
