// Package identity provides the identity verification and request
// authentication core for user facing HTTP services: stateless signed
// credentials (JWT), single use identity validation tokens with a
// persistent store, and an ordered request pipeline (route
// classification, authentication gate, resource ownership gate).
//
// Validation tokens:
//   - IdentityValidationToken is a single use, time boxed record proving
//     possession of an out of band channel (email). Tokens flip verified
//     exactly once; expired or consumed tokens never verify again. A
//     background Sweeper removes expired rows on a schedule.
//
// Request pipeline:
//   - RouteTable classifies requests against a statically declared set of
//     path patterns. Unregistered paths are rejected with 404 before any
//     credential work, public paths bypass authentication entirely.
//   - The authgate middleware extracts and validates the bearer
//     credential and resolves the subject's current profile; the
//     ownership gate then enforces that routes addressing a user by id
//     are only reachable by that same authenticated subject.
package identity
