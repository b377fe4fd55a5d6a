// Package auth authenticates callers of the launch API.
//
// A Chain asks each Authenticator in turn; the first one that accepts or
// rejects the credentials decides. The HTTP Middleware runs the chain,
// applies per-tier rate limits and stores the Identity and tenant in the
// request context. LanguagePolicy then restricts which languages an
// identity may launch.
package auth
