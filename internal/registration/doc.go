// Package registration coordinates writes across the ledger and the
// projection.
//
// Register runs the dual-write protocol:
//
//  1. validate username and password
//  2. reject a username already in the projection
//  3. normalize the secret to a ledger address
//  4. with no secret: register the pioneer, legal only while no root exists
//  5. check the secret is unused and its author has a projection row
//  6. mint the entity in the ledger (consumes the secret)
//  7. read the minted entity back from the ledger
//  8. commit entity, secret usage and credential rows in one transaction
//  9. re-assert the secret as used in the ledger (best effort)
//  10. issue a capability token
//
// Steps 1-5 have no side effects. A failure at step 8 leaves a consumed
// secret in the ledger with no registered user: an orphan. Orphans are not
// compensated automatically; FindOrphans lists them and AdoptOrphan mirrors
// one into the projection.
package registration
