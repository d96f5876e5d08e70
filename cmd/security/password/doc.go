// Package password provides Argon2id hashing and verification for markethub.
//
// Hash strings use a PHC-like encoded format and are treated as untrusted
// input during Verify: decoding is strict and verification refuses hashes
// whose parameters exceed reasonable bounds.
package password
