// Package identity authenticates ledger callers.
//
// It provides:
//   - KeyManager   : loads or creates the RSA signing key on disk
//   - TokenIssuer  : issues and verifies RS256 caller tokens bound to an address
//   - RequireCaller: Gin middleware enforcing a Bearer caller token
//   - RequireAdmin : Gin middleware enforcing the static admin secret
//   - JWKSProvider : discovery and JWKS endpoints for external verifiers
package identity
