// Package auth provides user accounts, password hashing, and signed
// session tokens.
//
// # Roles
//
// Stored role strings (ADMIN, PROJECT_MANAGER, EMPLOYEE, plus legacy
// synonyms) are collapsed onto the normalized set {admin, manager,
// employee} by MapRole. Unknown values map to employee so a corrupted or
// legacy role never widens access.
//
// # Tokens
//
// Session tokens are HS256 JWTs embedding user id, email, and stored role.
// One TTL policy applies service-wide (default 24h); the verifier rejects
// bad signatures, expired tokens, and non-HMAC algorithms without leaking
// which check failed.
package auth
