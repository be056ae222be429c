// Package local provides a database backed identity provider for
// go-authsession.
//
// Accounts live in the auth_accounts table managed by the repository
// package, passwords are bcrypt hashes and credentials are HS256 JWTs. The
// provider tracks a single signed in account, mirroring a client side
// identity SDK, and reports changes through OnAuthStateChange.
package local
