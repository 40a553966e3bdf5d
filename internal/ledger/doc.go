// Package ledger implements the append-only identity graph on top of the
// content-addressed object store.
//
// The ledger knows three record kinds (moment, entity, secret) and enforces
// the structural rules between them:
//
//   - exactly one pioneer (root) entity, created by BootstrapRoot
//   - every other entity names the author of the secret it consumed as its ancestor
//   - a secret goes UNUSED -> USED once and never back
//
// MintEntity is a compare-and-swap on the secret's consumed flag: calls on
// the same secret address are serialized by a per-address lock, so at most
// one of them mints. The lock is in-process only. Separate processes sharing
// a data directory are not serialized here; the projection's transactional
// secret guard is the second line for that case.
package ledger
