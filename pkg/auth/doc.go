// Package auth derives AppSync authorization headers from a credential.
//
// Only the static API key scheme is implemented. The other AppSync schemes
// are declared so configuration can name them, and fail with
// ErrNotImplemented when headers are requested.
package auth
