// Package projection is the relational mirror of the ledger, stored in SQLite.
//
// Tables:
//   - entities: one row per ledger entity, with the ancestor row link
//   - secrets: one row per known ledger secret, with its owner and used_at
//   - credentials: username -> entity binding with the password hash
//
// The ledger is authoritative for "is this secret used" and "who is the
// ancestor". The projection is authoritative for "does this username
// exist" and is the arbiter of whether a registration is durable: the
// registration rows are written in a single transaction (CommitRegistration)
// that either lands completely or leaves nothing behind.
package projection
