// Package auth provides password credentials and bearer tokens for Gray Logic Notify.
//
// It implements:
//   - PBKDF2 credential derivation with per-credential parameters
//   - A deployment-wide HS256 signing secret, generated once and persisted
//     as an ordinary credential under a reserved principal id
//   - Token issuance and scope-checked verification
//   - An API-gateway style authorizer that returns Allow/Deny policy documents
//
// All verification failures collapse to ErrUnauthorized so callers cannot
// tell a missing principal from a wrong password or a bad token. The
// specific reason is logged at debug level.
package auth
