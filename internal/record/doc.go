// Package record defines the immutable ledger record model for PathChain.
//
// Three kinds of record exist: moments, entities and secrets. Each record
// splits its fields into identity fields, which are hashed to form the
// record's address, and state fields, which are persisted alongside but
// never hashed. Only secrets carry state (the consumed flag and consumer).
//
// Key constraints:
//   - Encoding is canonical JSON (sorted keys by UTF-16 code units, NFC
//     strings, integers only, no HTML escaping)
//   - Digest = SHA2-256(domain || 0x00 || canonical(identity)), hex encoded
//   - Addresses have the form "{kind}s/{digest}", optionally prefixed by an
//     author digest: "{authorDigest}/{kind}s/{digest}"
//
// This package imports nothing internal.
package record
