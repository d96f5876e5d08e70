// Package session implements the server side of markethub credential
// lifetime management: the session store, the renewal credential store, the
// revocation ledger, and the token issuer that orchestrates them.
//
// Lifecycle: a session is ACTIVE from login until logout, forced revocation
// or the expiry sweep; there is no way back. Its renewal credential mirrors
// that and additionally rotates on every successful renewal, always
// producing a fresh sibling and ledger-stamping the old fingerprint in the
// same transaction.
package session
