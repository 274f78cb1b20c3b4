// Package auth issues and validates the bearer tokens that guard the
// control plane's write endpoints.
//
// Tokens are HS256 JWTs carrying a role. Operators may write the command
// register; viewers may only read. Access is decided from the token alone,
// with no database lookup.
package auth
