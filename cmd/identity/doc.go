// Package identity verifies login assertions for the markethub auth core.
//
// The auth core does not manage users; it consumes a verified user id and
// role set. This package is the seam to the external user backend, expressed
// as the Verifier interface with a Postgres implementation.
package identity
