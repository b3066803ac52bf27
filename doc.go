// Package auth provides household identity: phone number accounts with
// bearer tokens, and family membership with invite codes.
//
// Tokens:
//   - TokenService issues HS256 access and refresh tokens and validates them
//     without consulting revocation. Only access tokens are accepted as
//     bearer credentials.
//   - RevocationStore records logged out tokens for exactly their remaining
//     lifetime. Redis backs it in production, with an in-memory store as a
//     fallback while Redis is unreachable.
//
// Request boundary:
//   - AuthenticationResolver turns an Authorization header into a Principal.
//   - AuthorizationGuard checks the principal against the route RoleSet,
//     where any listed role grants access and an empty set is public.
//
// Families:
//   - MembershipCoordinator runs create, join, leave, remove, rename and
//     invite code lookups. Each mutation is one transaction made of
//     conditional statements, so a user belongs to at most one family and
//     the stored member count always matches the members on record.
//
// Activity sinks:
//   - ActivitySink receives account and family events. Sinks are best
//     effort and errors are only logged.
package auth
