// Package harness runs registration scenarios against a fresh ledger and
// projection and records a deterministic trace of what happened.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: basic_registration
//	description: "Root invites alice, alice invites bob"
//	steps:
//	  - op: bootstrap
//	  - op: register
//	    username: alice
//	    secret: root-secret
//	  - op: issue_secret
//	    entity: alice
//	    as: alice-invite
//	  - op: register
//	    username: bob
//	    secret: alice-invite
//	  - op: ancestor
//	    entity: bob
//	    expect_ancestor: alice
//	assertions:
//	  - type: lineage
//	    entity: bob
//	    chain: [bob, alice, root]
//
// Steps name entities and secrets by label, never by address. bootstrap
// binds the root as "root" (or its as: label) and the root's first secret
// as "<label>-secret". register binds the new entity under its username
// unless as: is given. issue_secret binds the new secret under as:.
//
// Each step expects success unless expect: names a fault code such as
// USED_SECRET or USERNAME_EXISTS.
//
// # Assertion Types
//
//   - counts: row counts in the projection (entities, secrets, used_secrets, credentials)
//   - lineage: the chain of labels from an entity up to the root
//   - unused_secrets: how many unused secrets an entity owns
//   - no_orphans: no consumed ledger secret lacks a projection row for its consumer
//
// # Deterministic Testing
//
// Every run uses an in-memory ledger, an in-memory SQLite projection, a
// stepping clock and sequential nonces, so addresses and ids repeat across
// runs. The trace prints labels and row ids only, which keeps golden files
// readable.
package harness
