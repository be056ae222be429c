// Package authsession keeps a single client side session in sync with a managed identity
// provider, gates navigation on that session, and authenticates outbound HTTP calls.
//
// Session store:
//   - Store is the only owner of the current Session. It listens to IdentityProvider
//     auth state callbacks, merges the raw provider identity with the extended profile
//     document kept in a ProfileStore, and republishes a normalized Session.
//   - Subscribers get the current value on Subscribe and then every publish, in publish
//     order, exactly once. Current never blocks.
//   - SignOut is fail open: local teardown happens even when the provider call fails.
//
// Guards:
//   - Guards evaluate one Session snapshot per navigation attempt and return a Decision
//     (allow, or deny and redirect). See middleware/guardware for the fiber binding.
//
// Transport:
//   - Transport is an http.RoundTripper that attaches a fresh bearer token per request
//     and turns 401 responses into a single forced sign-out plus a redirect to login.
//
// Activity sinks:
//   - ActivitySink receives audit events for sign in, registration, sign out, forced
//     sign out, password and role changes. Sinks run best-effort (errors are logged).
package authsession
